package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core"
	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core/reading"
)

type readingApi struct {
	validate   *validator.Validate
	translator ut.Translator
}

func registerReadingAPI(g *echo.Group, validate *validator.Validate, translator ut.Translator) {
	api := readingApi{validate: validate, translator: translator}

	g.POST("/running-records/score", api.score)
}

func (api *readingApi) score(ctx echo.Context) error {
	var data reading.RunningRecord
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := api.validate.Struct(data); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			return core.TranslateValidationErrors(verrs, api.translator)
		}
		return errors.Wrap(err, "validating running record")
	}
	return ctx.JSON(http.StatusOK, reading.Score(data))
}
