package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/wellbeing/core/access"
	"github.com/trezcool/wellbeing/core/organization"
	"github.com/trezcool/wellbeing/core/subscription"
	"github.com/trezcool/wellbeing/core/user"
)

type orgApi struct {
	svc      *organization.Service
	subs     *subscription.Service
	userSvc  user.ServiceInterface
	validate *validator.Validate
}

// registerOrgAPI returns the group of a single organization's endpoints.
func registerOrgAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) *echo.Group {
	api := orgApi{
		svc:      opts.OrgSvc,
		subs:     opts.SubSvc,
		userSvc:  opts.UserSvc,
		validate: opts.Validate,
	}

	g.GET("/plans", api.listPlans)

	ig := g.Group("/invitations", jwt)
	ig.GET("", api.myInvitations)
	ig.POST("/accept", api.acceptInvitation)

	og := g.Group("/orgs", jwt)
	og.GET("", api.list)
	og.POST("", api.create)

	// organization endpoints
	dg := og.Group("/:org", orgMiddleware(opts.UserSvc, opts.Access))
	dg.GET("", api.retrieve, requirePermission(access.ViewOrg))
	dg.PUT("", api.update, requirePermission(access.ManageOrg))
	dg.DELETE("", api.destroy, requirePermission(access.DeleteOrg))
	dg.GET("/permissions", api.permissions)
	dg.POST("/leave", api.leave)

	dg.GET("/members", api.queryMembers, requirePermission(access.ViewOrg))
	dg.PUT("/members/:user", api.updateMember, requirePermission(access.ManageMembers))
	dg.DELETE("/members/:user", api.removeMember, requirePermission(access.ManageMembers))

	dg.GET("/teams", api.listTeams, requirePermission(access.ViewOrg))
	dg.POST("/teams", api.createTeam, requirePermission(access.ManageTeams))
	dg.GET("/teams/:team", api.retrieveTeam, requirePermission(access.ViewOrg))
	dg.PUT("/teams/:team", api.updateTeam, requirePermission(access.ManageTeams))
	dg.DELETE("/teams/:team", api.destroyTeam, requirePermission(access.ManageTeams))

	dg.GET("/invitations", api.listInvitations, requirePermission(access.ManageMembers))
	dg.POST("/invitations", api.invite, requirePermission(access.ManageMembers))
	dg.DELETE("/invitations/:invitation", api.revokeInvitation, requirePermission(access.ManageMembers))

	dg.GET("/subscription", api.subscription, requirePermission(access.ViewOrg))
	dg.PUT("/subscription", api.changePlan, requirePermission(access.ManageBilling))
	return dg
}

// Organizations

func (api *orgApi) list(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	memberships, err := api.svc.ListForUser(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "listing memberships")
	}
	if memberships == nil {
		memberships = []organization.Membership{}
	}
	return ctx.JSON(http.StatusOK, memberships)
}

func (api *orgApi) create(ctx echo.Context) error {
	var data organization.NewOrganization
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewOrganization")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	org, err := api.svc.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating organization")
	}
	return ctx.JSON(http.StatusCreated, org)
}

func (api *orgApi) retrieve(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, acc)
}

func (api *orgApi) update(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	var data organization.UpdateOrganization
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateOrganization")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	org, err := api.svc.Update(ctx.Request().Context(), acc.Org.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating organization")
	}
	return ctx.JSON(http.StatusOK, org)
}

func (api *orgApi) destroy(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), acc.Org.ID); err != nil {
		return errors.Wrap(err, "deleting organization")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *orgApi) permissions(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	blocked := access.Blocked(acc.Member.Role, acc.Plan)
	if blocked == nil {
		blocked = []access.Permission{}
	}
	return ctx.JSON(http.StatusOK, PermissionsResponse{
		Role:        acc.Member.Role,
		Plan:        acc.Plan.ID,
		Permissions: acc.Permissions.List(),
		Blocked:     blocked,
		Testing:     acc.Testing,
	})
}

func (api *orgApi) leave(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Leave(ctx.Request().Context(), acc.Org.ID, acc.Member.UserID); err != nil {
		return errors.Wrap(err, "leaving organization")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Members

func (api *orgApi) queryMembers(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	filter := organization.MemberFilter{
		Search: ctx.QueryParam("search"),
		Role:   organization.Role(ctx.QueryParam("role")),
		TeamID: ctx.QueryParam("team"),
	}

	members, meta, err := api.svc.QueryMembers(ctx.Request().Context(), acc.Org.ID, filter, bindPagination(ctx))
	if err != nil {
		return errors.Wrap(err, "querying members")
	}
	if members == nil {
		members = []organization.Member{}
	}
	return ctx.JSON(http.StatusOK, PageResponse{Items: members, PageMeta: meta})
}

func (api *orgApi) updateMember(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	var data organization.UpdateMember
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateMember")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	m, err := api.svc.UpdateMember(ctx.Request().Context(), acc.Org.ID, acc.Member, ctx.Param("user"), data)
	if err != nil {
		return errors.Wrap(err, "updating member")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *orgApi) removeMember(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.RemoveMember(ctx.Request().Context(), acc.Org.ID, acc.Member, ctx.Param("user")); err != nil {
		return errors.Wrap(err, "removing member")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Teams

func (api *orgApi) listTeams(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	teams, err := api.svc.ListTeams(ctx.Request().Context(), acc.Org.ID)
	if err != nil {
		return errors.Wrap(err, "listing teams")
	}
	if teams == nil {
		teams = []organization.Team{}
	}
	return ctx.JSON(http.StatusOK, teams)
}

func (api *orgApi) createTeam(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	var data organization.NewTeam
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTeam")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	team, err := api.svc.CreateTeam(ctx.Request().Context(), acc.Org.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating team")
	}
	return ctx.JSON(http.StatusCreated, team)
}

func (api *orgApi) retrieveTeam(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	team, err := api.svc.GetTeam(ctx.Request().Context(), acc.Org.ID, ctx.Param("team"))
	if err != nil {
		return errors.Wrap(err, "getting team")
	}
	return ctx.JSON(http.StatusOK, team)
}

func (api *orgApi) updateTeam(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	var data organization.NewTeam
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTeam")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	team, err := api.svc.UpdateTeam(ctx.Request().Context(), acc.Org.ID, ctx.Param("team"), data)
	if err != nil {
		return errors.Wrap(err, "updating team")
	}
	return ctx.JSON(http.StatusOK, team)
}

func (api *orgApi) destroyTeam(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteTeam(ctx.Request().Context(), acc.Org.ID, ctx.Param("team")); err != nil {
		return errors.Wrap(err, "deleting team")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Invitations

func (api *orgApi) listInvitations(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	invitations, err := api.svc.ListInvitations(ctx.Request().Context(), acc.Org.ID)
	if err != nil {
		return errors.Wrap(err, "listing invitations")
	}
	if invitations == nil {
		invitations = []organization.Invitation{}
	}
	return ctx.JSON(http.StatusOK, invitations)
}

func (api *orgApi) invite(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	var data organization.NewInvitation
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewInvitation")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	// the token only travels by email
	inv, _, err := api.svc.Invite(ctx.Request().Context(), acc.Org, acc.Member, acc.Plan, data)
	if err != nil {
		return errors.Wrap(err, "inviting member")
	}
	return ctx.JSON(http.StatusCreated, inv)
}

func (api *orgApi) revokeInvitation(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	inv, err := api.svc.RevokeInvitation(ctx.Request().Context(), acc.Org.ID, ctx.Param("invitation"))
	if err != nil {
		return errors.Wrap(err, "revoking invitation")
	}
	return ctx.JSON(http.StatusOK, inv)
}

func (api *orgApi) myInvitations(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	invitations, err := api.svc.PendingInvitationsFor(ctx.Request().Context(), usr.Email)
	if err != nil {
		return errors.Wrap(err, "listing pending invitations")
	}
	if invitations == nil {
		invitations = []organization.PendingInvitation{}
	}
	return ctx.JSON(http.StatusOK, invitations)
}

func (api *orgApi) acceptInvitation(ctx echo.Context) error {
	var data AcceptInvitationRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AcceptInvitationRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	m, err := api.svc.AcceptInvitation(ctx.Request().Context(), usr, data.Token)
	if err != nil {
		return errors.Wrap(err, "accepting invitation")
	}
	return ctx.JSON(http.StatusOK, m)
}

// Subscription

func (api *orgApi) listPlans(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.subs.Catalog().Plans())
}

func (api *orgApi) subscription(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	return api.subscriptionResponse(ctx, acc, http.StatusOK)
}

func (api *orgApi) changePlan(ctx echo.Context) error {
	acc, err := getContextAccess(ctx)
	if err != nil {
		return err
	}
	var data subscription.ChangePlan
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChangePlan")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	if _, err = api.subs.ChangePlan(ctx.Request().Context(), acc.Org.ID, data); err != nil {
		return errors.Wrap(err, "changing plan")
	}
	return api.subscriptionResponse(ctx, acc, http.StatusOK)
}

func (api *orgApi) subscriptionResponse(ctx echo.Context, acc access.Context, code int) error {
	sub, err := api.subs.Get(ctx.Request().Context(), acc.Org.ID)
	if err != nil {
		return errors.Wrap(err, "getting subscription")
	}
	usage, err := api.subs.Usage(ctx.Request().Context(), acc.Org.ID)
	if err != nil {
		return errors.Wrap(err, "getting usage")
	}
	return ctx.JSON(code, SubscriptionResponse{
		Subscription:  sub,
		EffectivePlan: api.subs.PlanFor(sub),
		Usage:         usage,
	})
}

type (
	PermissionsResponse struct {
		Role        organization.Role   `json:"role"`
		Plan        subscription.PlanID `json:"plan"`
		Permissions []access.Permission `json:"permissions"`
		Blocked     []access.Permission `json:"blocked"`
		Testing     bool                `json:"testing"`
	}

	AcceptInvitationRequest struct {
		Token string `json:"token" validate:"required"`
	}

	SubscriptionResponse struct {
		Subscription  subscription.Subscription `json:"subscription"`
		EffectivePlan subscription.Plan         `json:"effective_plan"`
		Usage         subscription.Usage        `json:"usage"`
	}
)
