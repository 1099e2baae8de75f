package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/wellbeing/core"
	"github.com/trezcool/wellbeing/core/organization"
	"github.com/trezcool/wellbeing/core/subscription"
	"github.com/trezcool/wellbeing/core/survey"
	"github.com/trezcool/wellbeing/core/user"
)

// Repos groups the repositories of one storage backend.
type Repos struct {
	Users   user.Repository
	Orgs    organization.Repository
	Subs    subscription.Repository
	Surveys survey.Repository
}

// RunRepositoryTests checks the behaviour every storage backend must share.
// repos must be backed by an empty store.
func RunRepositoryTests(t *testing.T, repos Repos) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	owner := CreateUser(t, repos.Users, "Owner", "owner@test.com", "", nil, true, now)
	member := CreateUser(t, repos.Users, "Member", "member@test.com", "", []string{user.RolePlatformSupport}, true, now)

	org, err := repos.Orgs.CreateOrganization(ctx,
		organization.Organization{Name: "Acme", Slug: "acme", CreatedBy: owner.ID, CreatedAt: now, UpdatedAt: now},
		organization.Member{UserID: owner.ID, Role: organization.RoleOwner, JoinedAt: now},
	)
	require.NoError(t, err)
	require.NotEmpty(t, org.ID)

	t.Run("users", func(t *testing.T) {
		err := repos.Users.CheckEmailUniqueness(ctx, "OWNER@test.com")
		assert.Equal(t, user.ErrUserExists, err)
		assert.NoError(t, repos.Users.CheckEmailUniqueness(ctx, "owner@test.com", owner))

		usr, err := repos.Users.GetUser(ctx, user.GetFilter{Email: "member@test.com"})
		require.NoError(t, err)
		assert.Equal(t, member.ID, usr.ID)
		assert.Equal(t, []string{user.RolePlatformSupport}, usr.Roles)

		_, err = repos.Users.GetUser(ctx, user.GetFilter{ID: "not-a-uuid"})
		assert.Equal(t, user.ErrNotFound, err)

		users, err := repos.Users.QueryUsers(ctx, &user.QueryFilter{Roles: []string{user.RolePlatform}}, nil)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, member.ID, users[0].ID)

		usr.Name = "Mem Ber"
		usr, err = repos.Users.UpdateUser(ctx, usr)
		require.NoError(t, err)
		assert.Equal(t, "Mem Ber", usr.Name)
	})

	var team organization.Team
	t.Run("organizations", func(t *testing.T) {
		exists, err := repos.Orgs.SlugExists(ctx, "acme")
		require.NoError(t, err)
		assert.True(t, exists)

		m, err := repos.Orgs.GetMember(ctx, org.ID, owner.ID)
		require.NoError(t, err)
		assert.Equal(t, organization.RoleOwner, m.Role)
		assert.Equal(t, "owner@test.com", m.Email)

		_, err = repos.Orgs.GetMember(ctx, org.ID, member.ID)
		assert.Equal(t, organization.ErrNotMember, err)

		team, err = repos.Orgs.CreateTeam(ctx, organization.Team{OrgID: org.ID, Name: "Ops", CreatedAt: now, UpdatedAt: now})
		require.NoError(t, err)
		exists, err = repos.Orgs.TeamNameExists(ctx, org.ID, "OPS", "")
		require.NoError(t, err)
		assert.True(t, exists)
		exists, err = repos.Orgs.TeamNameExists(ctx, org.ID, "ops", team.ID)
		require.NoError(t, err)
		assert.False(t, exists)

		inv, err := repos.Orgs.CreateInvitation(ctx, organization.Invitation{
			OrgID:     org.ID,
			Email:     "member@test.com",
			Role:      organization.RoleManager,
			TeamID:    &team.ID,
			TokenHash: organization.HashInvitationToken("token"),
			InvitedBy: owner.ID,
			Status:    organization.InvitationPending,
			ExpiresAt: now.Add(time.Hour),
			CreatedAt: now,
		})
		require.NoError(t, err)

		pending, err := repos.Orgs.CountPendingInvitations(ctx, org.ID, now)
		require.NoError(t, err)
		assert.Equal(t, 1, pending)
		invs, err := repos.Orgs.ListPendingInvitationsByEmail(ctx, "member@test.com", now)
		require.NoError(t, err)
		require.Len(t, invs, 1)
		assert.Equal(t, "Acme", invs[0].OrgName)

		found, err := repos.Orgs.GetInvitationByTokenHash(ctx, organization.HashInvitationToken("token"))
		require.NoError(t, err)
		assert.Equal(t, inv.ID, found.ID)

		accepted := now
		inv.Status = organization.InvitationAccepted
		inv.AcceptedAt = &accepted
		_, err = repos.Orgs.AcceptInvitation(ctx, inv, organization.Member{
			OrgID: org.ID, UserID: member.ID, Role: organization.RoleManager, TeamID: &team.ID, JoinedAt: now,
		})
		require.NoError(t, err)

		// accepting twice fails
		_, err = repos.Orgs.AcceptInvitation(ctx, inv, organization.Member{OrgID: org.ID, UserID: member.ID, Role: organization.RoleManager, JoinedAt: now})
		assert.Error(t, err)

		count, err := repos.Orgs.CountMembers(ctx, org.ID, "")
		require.NoError(t, err)
		assert.Equal(t, 2, count)
		count, err = repos.Orgs.CountMembers(ctx, org.ID, organization.RoleOwner)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		members, total, err := repos.Orgs.QueryMembers(ctx, org.ID, organization.MemberFilter{Search: "mem"}, core.NewPagination(1, 10))
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, members, 1)
		assert.Equal(t, team.ID, *members[0].TeamID)

		memberships, err := repos.Orgs.ListMemberships(ctx, member.ID)
		require.NoError(t, err)
		require.Len(t, memberships, 1)
		assert.Equal(t, organization.RoleManager, memberships[0].Role)
	})

	t.Run("subscriptions", func(t *testing.T) {
		_, err := repos.Subs.GetSubscription(ctx, org.ID)
		assert.Equal(t, subscription.ErrNotFound, err)

		sub, err := repos.Subs.SaveSubscription(ctx, subscription.Subscription{
			OrgID: org.ID, Plan: subscription.PlanFree, Status: subscription.StatusActive, CreatedAt: now, UpdatedAt: now,
		})
		require.NoError(t, err)
		sub.Plan = subscription.PlanPro
		sub.UpdatedAt = now.Add(time.Minute)
		_, err = repos.Subs.SaveSubscription(ctx, sub)
		require.NoError(t, err)

		sub, err = repos.Subs.GetSubscription(ctx, org.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.PlanPro, sub.Plan)
		assert.True(t, sub.CreatedAt.Equal(now))
	})

	t.Run("surveys", func(t *testing.T) {
		q, err := repos.Surveys.CreateCustomQuestion(ctx, survey.CustomQuestion{
			OrgID: org.ID, Text: "Day?", Kind: survey.KindMultipleChoice, Options: []string{"Mon", "Fri"},
			CreatedBy: owner.ID, CreatedAt: now, UpdatedAt: now,
		})
		require.NoError(t, err)

		closed := now.Add(-time.Minute)
		open, err := repos.Surveys.CreateTemplate(ctx, survey.Template{
			OrgID: org.ID, Name: "Open", SurveyDate: now.Add(-time.Hour), PublicToken: "open-token",
			CustomQuestionIDs: []string{q.ID}, CreatedBy: owner.ID, CreatedAt: now, UpdatedAt: now,
		})
		require.NoError(t, err)
		_, err = repos.Surveys.CreateTemplate(ctx, survey.Template{
			OrgID: org.ID, Name: "Closed", SurveyDate: now.Add(-time.Hour), CloseDate: &closed, PublicToken: "closed-token",
			CustomQuestionIDs: []string{}, CreatedBy: owner.ID, CreatedAt: now.Add(time.Second), UpdatedAt: now,
		})
		require.NoError(t, err)

		active, err := repos.Surveys.CountActiveTemplates(ctx, org.ID, now)
		require.NoError(t, err)
		assert.Equal(t, 1, active)

		tmpl, err := repos.Surveys.GetTemplateByToken(ctx, "open-token")
		require.NoError(t, err)
		assert.Equal(t, open.ID, tmpl.ID)
		assert.Equal(t, []string{q.ID}, tmpl.CustomQuestionIDs)

		tmpls, total, err := repos.Surveys.QueryTemplates(ctx, org.ID, survey.TemplateFilter{Status: survey.StatusClosed}, nil, core.NewPagination(1, 10), now)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Equal(t, "Closed", tmpls[0].Name)

		tmpls, _, err = repos.Surveys.QueryTemplates(ctx, org.ID, survey.TemplateFilter{}, []core.DBOrdering{{Field: "close_date", Ascending: true}}, core.NewPagination(1, 10), now)
		require.NoError(t, err)
		require.Len(t, tmpls, 2)
		assert.Equal(t, "Closed", tmpls[0].Name, "open-ended surveys close last")

		for _, createdBy := range []string{owner.ID, "not-a-uuid"} {
			want := 0
			if createdBy == owner.ID {
				want = 2
			}
			tmpls, total, err = repos.Surveys.QueryTemplates(ctx, org.ID, survey.TemplateFilter{CreatedBy: createdBy}, nil, core.NewPagination(1, 10), now)
			require.NoError(t, err, createdBy)
			assert.Equal(t, want, total, createdBy)
			assert.Len(t, tmpls, want, createdBy)
		}

		inUse, err := repos.Surveys.CustomQuestionInUse(ctx, org.ID, q.ID)
		require.NoError(t, err)
		assert.True(t, inUse)

		_, err = repos.Surveys.CreateResponse(ctx, survey.Response{
			SurveyID: open.ID, OrgID: org.ID, TeamID: &team.ID,
			Answers:       map[int]int{1: 5, 3: 1},
			CustomAnswers: []survey.CustomAnswer{{QuestionID: q.ID, Choice: "Fri"}},
			SubmittedAt:   now,
		})
		require.NoError(t, err)
		_, err = repos.Surveys.CreateResponse(ctx, survey.Response{
			SurveyID: open.ID, OrgID: org.ID, Answers: map[int]int{1: 2}, CustomAnswers: []survey.CustomAnswer{}, SubmittedAt: now.Add(time.Second),
		})
		require.NoError(t, err)

		resps, err := repos.Surveys.ListResponses(ctx, open.ID, "")
		require.NoError(t, err)
		require.Len(t, resps, 2)
		assert.Equal(t, map[int]int{1: 5, 3: 1}, resps[0].Answers)
		assert.Equal(t, "Fri", resps[0].CustomAnswers[0].Choice)

		resps, err = repos.Surveys.ListResponses(ctx, open.ID, team.ID)
		require.NoError(t, err)
		assert.Len(t, resps, 1)

		d, err := repos.Surveys.CreateDescriptor(ctx, survey.Descriptor{
			OrgID: org.ID, SurveyID: open.ID, Category: survey.CategoryDemands, Title: "Hire",
			Status: survey.DescriptorNotStarted, AssignedTo: &member.ID, CreatedBy: owner.ID, CreatedAt: now, UpdatedAt: now,
		})
		require.NoError(t, err)

		// removing a member unassigns their action plan items
		require.NoError(t, repos.Orgs.RemoveMember(ctx, org.ID, member.ID))
		d, err = repos.Surveys.GetDescriptor(ctx, open.ID, d.ID)
		require.NoError(t, err)
		assert.Nil(t, d.AssignedTo)

		// deleting the team keeps its responses, without a team
		require.NoError(t, repos.Orgs.DeleteTeam(ctx, org.ID, team.ID))
		count, err := repos.Surveys.CountResponses(ctx, open.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		require.NoError(t, repos.Surveys.DeleteTemplate(ctx, org.ID, open.ID))
		_, err = repos.Surveys.GetTemplate(ctx, org.ID, open.ID)
		assert.Equal(t, survey.ErrNotFound, err)
		_, err = repos.Surveys.GetDescriptor(ctx, open.ID, d.ID)
		assert.Equal(t, survey.ErrDescriptorNotFound, err)
		count, err = repos.Surveys.CountResponses(ctx, open.ID)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("delete organization", func(t *testing.T) {
		require.NoError(t, repos.Orgs.DeleteOrganization(ctx, org.ID))
		_, err := repos.Orgs.GetOrganization(ctx, org.ID)
		assert.Equal(t, organization.ErrNotFound, err)
		qs, err := repos.Surveys.ListCustomQuestions(ctx, org.ID, true)
		require.NoError(t, err)
		assert.Empty(t, qs)
		memberships, err := repos.Orgs.ListMemberships(ctx, owner.ID)
		require.NoError(t, err)
		assert.Empty(t, memberships)
	})
}
