package classroom

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core"
	"github.com/fredmonaquezi/teacher-assistant-web-sub001/core/grouping"
)

type Class struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerName string    `json:"owner_name"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// Group is a persisted student group. Members keep the order they were picked in.
type Group struct {
	ID        string             `json:"id"`
	ClassID   string             `json:"class_id"`
	Name      string             `json:"name"`
	CreatedAt time.Time          `json:"created_at"` // UTC
	Members   []grouping.Student `json:"members"`
}

// GenerateRequest contains what a grouping run needs.
type GenerateRequest struct {
	ClassID             string `json:"classId" validate:"required"`
	Size                int    `json:"size" validate:"required,groupsize"`
	Prefix              string `json:"prefix"`
	ClearExisting       bool   `json:"clearExisting"`
	BalanceGender       bool   `json:"balanceGender"`
	BalanceAbility      bool   `json:"balanceAbility"`
	PairSupportPartners bool   `json:"pairSupportPartners"`
	RespectSeparations  *bool  `json:"respectSeparations"` // nil means true
}

func (req GenerateRequest) Options() grouping.Options {
	return grouping.Options{
		BalanceGender:       req.BalanceGender,
		BalanceAbility:      req.BalanceAbility,
		PairSupportPartners: req.PairSupportPartners,
		RespectSeparations:  req.RespectSeparations == nil || *req.RespectSeparations,
	}
}

// Validate cleans the request strings then checks its fields.
func (req *GenerateRequest) Validate(validate *validator.Validate, translator ut.Translator) error {
	req.ClassID = core.CleanString(req.ClassID)
	req.Prefix = core.CleanString(req.Prefix)

	if err := validate.Struct(req); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			return core.TranslateValidationErrors(verrs, translator)
		}
		return err
	}
	return nil
}

type GenerateResult struct {
	Groups   []Group            `json:"groups"`
	Unplaced []grouping.Student `json:"unplaced"`
}
