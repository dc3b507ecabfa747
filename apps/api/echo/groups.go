package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core/classroom"
)

type groupApi struct {
	svc GroupService
}

func registerGroupAPI(g *echo.Group, svc GroupService) {
	api := groupApi{svc: svc}

	cg := g.Group("/classes/:classId/groups")
	cg.POST("/generate", api.generate)
	cg.GET("", api.query)
	cg.DELETE("", api.clear)
}

// Handlers

func (api *groupApi) generate(ctx echo.Context) error {
	var data classroom.GenerateRequest
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	data.ClassID = ctx.Param("classId")

	res, err := api.svc.GenerateGroups(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "generating groups")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *groupApi) query(ctx echo.Context) error {
	groups, err := api.svc.QueryGroups(ctx.Request().Context(), ctx.Param("classId"))
	if err != nil {
		return errors.Wrap(err, "querying groups")
	}
	return ctx.JSON(http.StatusOK, groups)
}

func (api *groupApi) clear(ctx echo.Context) error {
	n, err := api.svc.ClearGroups(ctx.Request().Context(), ctx.Param("classId"))
	if err != nil {
		return errors.Wrap(err, "clearing groups")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"deleted": n})
}
