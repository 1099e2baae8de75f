package echoapi

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/wellbeing/core/access"
	"github.com/trezcool/wellbeing/core/survey"
)

type surveyApi struct {
	svc      *survey.Service
	validate *validator.Validate
}

// registerSurveyAPI mounts the survey endpoints under og, the organization group.
func registerSurveyAPI(og *echo.Group, opts *Options) {
	api := surveyApi{
		svc:      opts.SurveySvc,
		validate: opts.Validate,
	}

	sg := og.Group("/surveys")
	sg.GET("", api.query, requirePermission(access.ViewResults))
	sg.POST("", api.create, requirePermission(access.ManageSurveys))
	sg.GET("/:survey", api.retrieve, requirePermission(access.ViewResults))
	sg.PUT("/:survey", api.update, requirePermission(access.ManageSurveys))
	sg.DELETE("/:survey", api.destroy, requirePermission(access.ManageSurveys))
	sg.POST("/:survey/close", api.close, requirePermission(access.ManageSurveys))
	sg.POST("/:survey/reopen", api.reopen, requirePermission(access.ManageSurveys))
	sg.POST("/:survey/rotate-link", api.rotateLink, requirePermission(access.ManageSurveys))
	sg.POST("/:survey/distribute", api.distribute, requirePermission(access.ManageSurveys))
	sg.GET("/:survey/responses", api.responses, requirePermission(access.ViewResults))
	sg.GET("/:survey/report", api.report, requirePermission(access.ViewResults))
	sg.GET("/:survey/export", api.export, requirePermission(access.ExportResults))

	sg.GET("/:survey/descriptors", api.listDescriptors, requirePermission(access.ViewResults))
	sg.POST("/:survey/descriptors", api.createDescriptor, requirePermission(access.ManageActionPlans))
	sg.GET("/:survey/descriptors/:descriptor", api.retrieveDescriptor, requirePermission(access.ViewResults))
	sg.PUT("/:survey/descriptors/:descriptor", api.updateDescriptor, requirePermission(access.ManageActionPlans))
	sg.DELETE("/:survey/descriptors/:descriptor", api.destroyDescriptor, requirePermission(access.ManageActionPlans))

	qg := og.Group("/questions")
	qg.GET("", api.listQuestions, requirePermission(access.ManageSurveys))
	qg.GET("/standard", api.standardQuestions)
	qg.POST("", api.createQuestion, requirePermission(access.ManageCustomQuestions))
	qg.PUT("/:question", api.updateQuestion, requirePermission(access.ManageCustomQuestions))
	qg.DELETE("/:question", api.destroyQuestion, requirePermission(access.ManageCustomQuestions))
}

func (api *surveyApi) detail(tmpl survey.Template) SurveyResponse {
	return SurveyResponse{
		Template:  tmpl,
		Status:    tmpl.Status(survey.NowFunc()),
		PublicURL: api.svc.PublicURL(tmpl),
	}
}

// Templates

func (api *surveyApi) query(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	filter := survey.TemplateFilter{
		Search:    ctx.QueryParam("search"),
		Status:    ctx.QueryParam("status"),
		CreatedBy: ctx.QueryParam("created_by"),
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	tmpls, meta, err := api.svc.QueryTemplates(ctx.Request().Context(), acc.Org.ID, filter, ordering.Orderings, bindPagination(ctx))
	if err != nil {
		return errors.Wrap(err, "querying surveys")
	}
	items := make([]SurveyResponse, 0, len(tmpls))
	for _, tmpl := range tmpls {
		items = append(items, api.detail(tmpl))
	}
	return ctx.JSON(http.StatusOK, PageResponse{Items: items, PageMeta: meta})
}

func (api *surveyApi) create(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	var data survey.NewTemplate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTemplate")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	tmpl, err := api.svc.CreateTemplate(ctx.Request().Context(), acc.Org.ID, acc.Member.UserID, acc.Plan, data)
	if err != nil {
		return errors.Wrap(err, "creating survey")
	}
	return ctx.JSON(http.StatusCreated, api.detail(tmpl))
}

func (api *surveyApi) retrieve(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	tmpl, err := api.svc.GetTemplate(ctx.Request().Context(), acc.Org.ID, ctx.Param("survey"))
	if err != nil {
		return errors.Wrap(err, "getting survey")
	}
	return ctx.JSON(http.StatusOK, api.detail(tmpl))
}

func (api *surveyApi) update(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	var data survey.UpdateTemplate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTemplate")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	tmpl, err := api.svc.UpdateTemplate(ctx.Request().Context(), acc.Org.ID, ctx.Param("survey"), acc.Plan, data)
	if err != nil {
		return errors.Wrap(err, "updating survey")
	}
	return ctx.JSON(http.StatusOK, api.detail(tmpl))
}

func (api *surveyApi) destroy(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteTemplate(ctx.Request().Context(), acc.Org.ID, ctx.Param("survey")); err != nil {
		return errors.Wrap(err, "deleting survey")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *surveyApi) close(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	tmpl, err := api.svc.CloseTemplate(ctx.Request().Context(), acc.Org.ID, ctx.Param("survey"))
	if err != nil {
		return errors.Wrap(err, "closing survey")
	}
	return ctx.JSON(http.StatusOK, api.detail(tmpl))
}

func (api *surveyApi) reopen(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	var data ReopenRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReopenRequest")
	}

	tmpl, err := api.svc.ReopenTemplate(ctx.Request().Context(), acc.Org.ID, ctx.Param("survey"), acc.Plan, data.CloseDate)
	if err != nil {
		return errors.Wrap(err, "reopening survey")
	}
	return ctx.JSON(http.StatusOK, api.detail(tmpl))
}

func (api *surveyApi) rotateLink(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	tmpl, err := api.svc.RotatePublicToken(ctx.Request().Context(), acc.Org.ID, ctx.Param("survey"))
	if err != nil {
		return errors.Wrap(err, "rotating public link")
	}
	return ctx.JSON(http.StatusOK, api.detail(tmpl))
}

func (api *surveyApi) distribute(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	var data survey.Distribution
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Distribution")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	sent, err := api.svc.Distribute(ctx.Request().Context(), acc.Org.ID, ctx.Param("survey"), acc.Member, data)
	if err != nil {
		return errors.Wrap(err, "distributing survey")
	}
	return ctx.JSON(http.StatusOK, DistributeResponse{Sent: sent})
}

// Results

func (api *surveyApi) responses(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	resps, meta, err := api.svc.ListResponses(
		ctx.Request().Context(), acc.Org.ID, ctx.Param("survey"), ctx.QueryParam("team"), acc.Plan, bindPagination(ctx),
	)
	if err != nil {
		return errors.Wrap(err, "listing responses")
	}
	if resps == nil {
		resps = []survey.Response{}
	}
	return ctx.JSON(http.StatusOK, PageResponse{Items: resps, PageMeta: meta})
}

func (api *surveyApi) report(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	rep, err := api.svc.Report(ctx.Request().Context(), acc.Org.ID, ctx.Param("survey"), ctx.QueryParam("team"), acc.Plan)
	if err != nil {
		return errors.Wrap(err, "building report")
	}
	return ctx.JSON(http.StatusOK, rep)
}

func (api *surveyApi) export(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	// buffered so that failures still get a JSON error
	var buf bytes.Buffer
	if err = api.svc.ExportCSV(ctx.Request().Context(), acc.Org.ID, ctx.Param("survey"), acc.Plan, &buf); err != nil {
		return errors.Wrap(err, "exporting responses")
	}

	filename := fmt.Sprintf("survey-%s-%s.csv", ctx.Param("survey"), survey.NowFunc().UTC().Format("20060102"))
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return ctx.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// Action plans

func (api *surveyApi) listDescriptors(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	filter := survey.DescriptorFilter{
		Status:     survey.DescriptorStatus(ctx.QueryParam("status")),
		AssignedTo: ctx.QueryParam("assigned_to"),
	}
	ds, err := api.svc.ListDescriptors(ctx.Request().Context(), acc.Org.ID, ctx.Param("survey"), filter)
	if err != nil {
		return errors.Wrap(err, "listing descriptors")
	}
	return ctx.JSON(http.StatusOK, ds)
}

func (api *surveyApi) createDescriptor(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	var data survey.NewDescriptor
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDescriptor")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	d, err := api.svc.CreateDescriptor(ctx.Request().Context(), acc.Org.ID, ctx.Param("survey"), acc.Member.UserID, data)
	if err != nil {
		return errors.Wrap(err, "creating descriptor")
	}
	return ctx.JSON(http.StatusCreated, d)
}

func (api *surveyApi) retrieveDescriptor(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	d, err := api.svc.GetDescriptor(ctx.Request().Context(), acc.Org.ID, ctx.Param("survey"), ctx.Param("descriptor"))
	if err != nil {
		return errors.Wrap(err, "getting descriptor")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *surveyApi) updateDescriptor(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	var data survey.UpdateDescriptor
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateDescriptor")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	d, err := api.svc.UpdateDescriptor(ctx.Request().Context(), acc.Org.ID, ctx.Param("survey"), ctx.Param("descriptor"), data)
	if err != nil {
		return errors.Wrap(err, "updating descriptor")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *surveyApi) destroyDescriptor(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	err = api.svc.DeleteDescriptor(ctx.Request().Context(), acc.Org.ID, ctx.Param("survey"), ctx.Param("descriptor"))
	if err != nil {
		return errors.Wrap(err, "deleting descriptor")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Questions

func (api *surveyApi) standardQuestions(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, survey.StandardQuestions)
}

func (api *surveyApi) listQuestions(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	includeArchived := queryBool(ctx, "archived")
	qs, err := api.svc.ListCustomQuestions(ctx.Request().Context(), acc.Org.ID, includeArchived != nil && *includeArchived)
	if err != nil {
		return errors.Wrap(err, "listing custom questions")
	}
	if qs == nil {
		qs = []survey.CustomQuestion{}
	}
	return ctx.JSON(http.StatusOK, qs)
}

func (api *surveyApi) createQuestion(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	var data survey.NewCustomQuestion
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCustomQuestion")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	q, err := api.svc.CreateCustomQuestion(ctx.Request().Context(), acc.Org.ID, acc.Member.UserID, acc.Plan, data)
	if err != nil {
		return errors.Wrap(err, "creating custom question")
	}
	return ctx.JSON(http.StatusCreated, q)
}

func (api *surveyApi) updateQuestion(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	var data survey.UpdateCustomQuestion
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCustomQuestion")
	}

	q, err := api.svc.UpdateCustomQuestion(ctx.Request().Context(), acc.Org.ID, ctx.Param("question"), acc.Plan, data)
	if err != nil {
		return errors.Wrap(err, "updating custom question")
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *surveyApi) destroyQuestion(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteCustomQuestion(ctx.Request().Context(), acc.Org.ID, ctx.Param("question")); err != nil {
		return errors.Wrap(err, "deleting custom question")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type (
	SurveyResponse struct {
		survey.Template
		Status    string `json:"status"`
		PublicURL string `json:"public_url"`
	}

	ReopenRequest struct {
		CloseDate *time.Time `json:"close_date"`
	}

	DistributeResponse struct {
		Sent int `json:"sent"`
	}
)
