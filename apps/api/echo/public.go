package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/wellbeing/core/survey"
)

// publicApi serves respondents, who never authenticate.
type publicApi struct {
	svc *survey.Service
}

func registerPublicAPI(g *echo.Group, opts *Options) {
	api := publicApi{svc: opts.SurveySvc}

	pg := g.Group("/public/surveys/:token")
	pg.GET("", api.retrieve)
	pg.POST("", api.submit)
}

func (api *publicApi) retrieve(ctx echo.Context) error {
	ps, err := api.svc.PublicSurvey(ctx.Request().Context(), ctx.Param("token"))
	if err != nil {
		return errors.Wrap(err, "getting public survey")
	}
	return ctx.JSON(http.StatusOK, ps)
}

func (api *publicApi) submit(ctx echo.Context) error {
	var data survey.NewResponse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewResponse")
	}

	resp, err := api.svc.Submit(ctx.Request().Context(), ctx.Param("token"), data)
	if err != nil {
		return errors.Wrap(err, "submitting response")
	}
	return ctx.JSON(http.StatusCreated, SubmitResponse{ID: resp.ID, SubmittedAt: resp.SubmittedAt})
}

type SubmitResponse struct {
	ID          string    `json:"id"`
	SubmittedAt time.Time `json:"submitted_at"`
}
