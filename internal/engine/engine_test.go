package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"worktrade/internal/blob"
	"worktrade/internal/config"
	"worktrade/internal/db"
	"worktrade/internal/domain"
	"worktrade/internal/engine"
	"worktrade/internal/engine/fault"
	"worktrade/internal/identity"
	"worktrade/internal/migrate"
	"worktrade/internal/repo"
)

var (
	asBuyer      = identity.Principal{ActorID: "buyer-1", Role: domain.RoleBuyer}
	asOtherBuyer = identity.Principal{ActorID: "buyer-2", Role: domain.RoleBuyer}
	asDev        = identity.Principal{ActorID: "dev-1", Role: domain.RoleDeveloper}
	asOtherDev   = identity.Principal{ActorID: "dev-2", Role: domain.RoleDeveloper}
	asAdmin      = identity.Principal{ActorID: "admin-1", Role: domain.RoleAdmin}
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := blob.NewFSStore(db.BlobDir(dir), 1<<20)
	eng := engine.New(conn, store, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	seed := []domain.Actor{
		{ID: "buyer-1", Name: "Buyer One", Role: domain.RoleBuyer, CreatedAt: "2024-01-01T00:00:00Z"},
		{ID: "buyer-2", Name: "Buyer Two", Role: domain.RoleBuyer, CreatedAt: "2024-01-01T00:00:00Z"},
		{ID: "dev-1", Name: "Dev One", Role: domain.RoleDeveloper, CreatedAt: "2024-01-01T00:00:00Z"},
		{ID: "dev-2", Name: "Dev Two", Role: domain.RoleDeveloper, CreatedAt: "2024-01-01T00:00:00Z"},
		{ID: "admin-1", Name: "Admin", Role: domain.RoleAdmin, CreatedAt: "2024-01-01T00:00:00Z"},
	}
	for _, a := range seed {
		if err := eng.Repo.EnsureActor(ctx, tx, a); err != nil {
			t.Fatalf("seed actor %s: %v", a.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("seed commit: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) openProject(t *testing.T, rate float64) domain.Project {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, asBuyer, engine.ProjectCreateOptions{
		Title:      "Build a parser",
		HourlyRate: rate,
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func (env testEnv) submittedTask(t *testing.T, hours float64) domain.Task {
	t.Helper()
	p := env.openProject(t, 80)
	task, err := env.Engine.AssignTask(env.Ctx, asBuyer, engine.TaskAssignOptions{
		ProjectID:   p.ID,
		DeveloperID: "dev-1",
		Title:       "Implement the lexer",
	})
	if err != nil {
		t.Fatalf("assign task: %v", err)
	}
	if _, err := env.Engine.StartTask(env.Ctx, asDev, task.ID); err != nil {
		t.Fatalf("start task: %v", err)
	}
	task, err = env.Engine.SubmitTask(env.Ctx, asDev, engine.TaskSubmitOptions{
		TaskID:         task.ID,
		Archive:        []byte("archive bytes"),
		TimeSpentHours: hours,
	})
	if err != nil {
		t.Fatalf("submit task: %v", err)
	}
	return task
}

func TestCreateProjectRequiresBuyerRole(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateProject(env.Ctx, asDev, engine.ProjectCreateOptions{Title: "x", HourlyRate: 50})
	var forbidden fault.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestCloseProjectOnlyByOwner(t *testing.T) {
	env := newTestEnv(t)
	p := env.openProject(t, 50)
	if _, err := env.Engine.CloseProject(env.Ctx, asOtherBuyer, p.ID); err == nil {
		t.Fatalf("expected forbidden for non-owner")
	}
	p, err := env.Engine.CloseProject(env.Ctx, asBuyer, p.ID)
	if err != nil || p.Status != domain.ProjectClosed {
		t.Fatalf("close: %v", err)
	}
	// closing twice is an invalid state, not a silent no-op
	_, err = env.Engine.CloseProject(env.Ctx, asBuyer, p.ID)
	var invalid fault.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestDuplicateLiveProposalRejected(t *testing.T) {
	env := newTestEnv(t)
	p := env.openProject(t, 50)
	_, err := env.Engine.SubmitProposal(env.Ctx, asDev, engine.ProposalSubmitOptions{ProjectID: p.ID, ProposedRate: 60})
	if err != nil {
		t.Fatalf("first proposal: %v", err)
	}
	_, err = env.Engine.SubmitProposal(env.Ctx, asDev, engine.ProposalSubmitOptions{ProjectID: p.ID, ProposedRate: 55})
	var invalid fault.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid state for duplicate live proposal, got %v", err)
	}
	// a withdrawn proposal frees the slot
	props, err := env.Engine.ListProposals(env.Ctx, asDev, repo.ProposalFilters{ProjectID: p.ID})
	if err != nil || len(props) != 1 {
		t.Fatalf("list proposals: %v (%d)", err, len(props))
	}
	if _, err := env.Engine.WithdrawProposal(env.Ctx, asDev, props[0].ID); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if _, err := env.Engine.SubmitProposal(env.Ctx, asDev, engine.ProposalSubmitOptions{ProjectID: p.ID, ProposedRate: 55}); err != nil {
		t.Fatalf("resubmit after withdraw: %v", err)
	}
}

func TestConcurrentProposalSubmitSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	p := env.openProject(t, 50)
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.SubmitProposal(env.Ctx, asDev, engine.ProposalSubmitOptions{ProjectID: p.ID, ProposedRate: 60})
		}(i)
	}
	wg.Wait()
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		// the loser gets invalid state whether the pre-check or the
		// unique index caught it
		var invalid fault.InvalidStateError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected invalid state for the losing submit, got %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one successful submit, got %d (errs: %v)", succeeded, errs)
	}
	props, err := env.Engine.ListProposals(env.Ctx, asDev, repo.ProposalFilters{ProjectID: p.ID})
	if err != nil || len(props) != 1 {
		t.Fatalf("expected one proposal row, got %d (%v)", len(props), err)
	}
}

func TestProposalOnClosedProjectInvalid(t *testing.T) {
	env := newTestEnv(t)
	p := env.openProject(t, 50)
	if _, err := env.Engine.CloseProject(env.Ctx, asBuyer, p.ID); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.SubmitProposal(env.Ctx, asDev, engine.ProposalSubmitOptions{ProjectID: p.ID, ProposedRate: 60})
	var invalid fault.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestAcceptClosesProjectAndRejectsRivals(t *testing.T) {
	env := newTestEnv(t)
	p := env.openProject(t, 50)
	winner, err := env.Engine.SubmitProposal(env.Ctx, asDev, engine.ProposalSubmitOptions{ProjectID: p.ID, ProposedRate: 60})
	if err != nil {
		t.Fatal(err)
	}
	rival, err := env.Engine.SubmitProposal(env.Ctx, asOtherDev, engine.ProposalSubmitOptions{ProjectID: p.ID, ProposedRate: 45})
	if err != nil {
		t.Fatal(err)
	}
	accepted, err := env.Engine.AcceptProposal(env.Ctx, asBuyer, winner.ID)
	if err != nil || accepted.Status != domain.ProposalAccepted {
		t.Fatalf("accept: %v", err)
	}
	got, err := env.Engine.GetProject(env.Ctx, p.ID)
	if err != nil || got.Status != domain.ProjectClosed {
		t.Fatalf("project should be closed after accept: %v %s", err, got.Status)
	}
	r, err := env.Engine.GetProposal(env.Ctx, asAdmin, rival.ID)
	if err != nil || r.Status != domain.ProposalRejected {
		t.Fatalf("rival should be rejected: %v %s", err, r.Status)
	}
	// no second accept on the same project
	_, err = env.Engine.AcceptProposal(env.Ctx, asBuyer, rival.ID)
	var invalid fault.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestAcceptByNonOwnerForbidden(t *testing.T) {
	env := newTestEnv(t)
	p := env.openProject(t, 50)
	prop, err := env.Engine.SubmitProposal(env.Ctx, asDev, engine.ProposalSubmitOptions{ProjectID: p.ID, ProposedRate: 60})
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.AcceptProposal(env.Ctx, asOtherBuyer, prop.ID)
	var forbidden fault.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestWithdrawOnlyPendingByAuthor(t *testing.T) {
	env := newTestEnv(t)
	p := env.openProject(t, 50)
	prop, err := env.Engine.SubmitProposal(env.Ctx, asDev, engine.ProposalSubmitOptions{ProjectID: p.ID, ProposedRate: 60})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.WithdrawProposal(env.Ctx, asOtherDev, prop.ID); err == nil {
		t.Fatalf("expected forbidden for non-author withdraw")
	}
	if _, err := env.Engine.RejectProposal(env.Ctx, asBuyer, prop.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	_, err = env.Engine.WithdrawProposal(env.Ctx, asDev, prop.ID)
	var invalid fault.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid state withdrawing a rejected proposal, got %v", err)
	}
}

func TestAssignTaskHonorsAcceptedProposal(t *testing.T) {
	env := newTestEnv(t)
	p := env.openProject(t, 50)
	prop, err := env.Engine.SubmitProposal(env.Ctx, asDev, engine.ProposalSubmitOptions{ProjectID: p.ID, ProposedRate: 60})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AcceptProposal(env.Ctx, asBuyer, prop.ID); err != nil {
		t.Fatal(err)
	}
	// assigning a different developer is invalid once a proposal is accepted
	_, err = env.Engine.AssignTask(env.Ctx, asBuyer, engine.TaskAssignOptions{
		ProjectID: p.ID, DeveloperID: "dev-2", Title: "side work",
	})
	var invalid fault.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	task, err := env.Engine.AssignTask(env.Ctx, asBuyer, engine.TaskAssignOptions{
		ProjectID: p.ID, DeveloperID: "dev-1", Title: "main work",
	})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if task.HourlyRate != 60 {
		t.Fatalf("expected accepted proposal rate 60, got %v", task.HourlyRate)
	}
}

func TestTaskForwardOnlyTransitions(t *testing.T) {
	env := newTestEnv(t)
	p := env.openProject(t, 80)
	task, err := env.Engine.AssignTask(env.Ctx, asBuyer, engine.TaskAssignOptions{
		ProjectID: p.ID, DeveloperID: "dev-1", Title: "work",
	})
	if err != nil {
		t.Fatal(err)
	}
	// submit before start skips in_progress
	_, err = env.Engine.SubmitTask(env.Ctx, asDev, engine.TaskSubmitOptions{TaskID: task.ID, Archive: []byte("x"), TimeSpentHours: 1})
	var invalid fault.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	// only the assigned developer may start
	if _, err := env.Engine.StartTask(env.Ctx, asOtherDev, task.ID); err == nil {
		t.Fatalf("expected forbidden for other developer")
	}
	task, err = env.Engine.StartTask(env.Ctx, asDev, task.ID)
	if err != nil || task.Status != domain.TaskInProgress {
		t.Fatalf("start: %v", err)
	}
	// starting twice is invalid
	if _, err := env.Engine.StartTask(env.Ctx, asDev, task.ID); !errors.As(err, &invalid) {
		t.Fatalf("expected invalid state on double start, got %v", err)
	}
}

func TestSubmitRequiresPositiveHours(t *testing.T) {
	env := newTestEnv(t)
	p := env.openProject(t, 80)
	task, err := env.Engine.AssignTask(env.Ctx, asBuyer, engine.TaskAssignOptions{
		ProjectID: p.ID, DeveloperID: "dev-1", Title: "work",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.StartTask(env.Ctx, asDev, task.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SubmitTask(env.Ctx, asDev, engine.TaskSubmitOptions{TaskID: task.ID, Archive: []byte("x"), TimeSpentHours: 0}); err == nil {
		t.Fatalf("expected error for zero hours")
	}
	if _, err := env.Engine.SubmitTask(env.Ctx, asDev, engine.TaskSubmitOptions{TaskID: task.ID, Archive: nil, TimeSpentHours: 2}); err == nil {
		t.Fatalf("expected error for empty archive")
	}
}

func TestPayComputesAmountFromRateAndHours(t *testing.T) {
	env := newTestEnv(t)
	task := env.submittedTask(t, 2.5)
	pay, err := env.Engine.PayTask(env.Ctx, asBuyer, task.ID)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if pay.Amount != 80*2.5 {
		t.Fatalf("expected amount 200, got %v", pay.Amount)
	}
	if pay.Currency != "USD" {
		t.Fatalf("expected USD, got %s", pay.Currency)
	}
	got, err := env.Engine.GetTask(env.Ctx, asBuyer, task.ID)
	if err != nil || got.Status != domain.TaskPaid {
		t.Fatalf("task should be paid: %v %s", err, got.Status)
	}
}

func TestPayBeforeSubmitInvalid(t *testing.T) {
	env := newTestEnv(t)
	p := env.openProject(t, 80)
	task, err := env.Engine.AssignTask(env.Ctx, asBuyer, engine.TaskAssignOptions{
		ProjectID: p.ID, DeveloperID: "dev-1", Title: "work",
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.PayTask(env.Ctx, asBuyer, task.ID)
	var invalid fault.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestDoublePayInvalid(t *testing.T) {
	env := newTestEnv(t)
	task := env.submittedTask(t, 1)
	if _, err := env.Engine.PayTask(env.Ctx, asBuyer, task.ID); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.PayTask(env.Ctx, asBuyer, task.ID)
	var invalid fault.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid state on double pay, got %v", err)
	}
}

func TestConcurrentPaySingleWinner(t *testing.T) {
	env := newTestEnv(t)
	task := env.submittedTask(t, 1)
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.PayTask(env.Ctx, asBuyer, task.ID)
		}(i)
	}
	wg.Wait()
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one successful pay, got %d (errs: %v)", succeeded, errs)
	}
	pays, err := env.Engine.ListPayments(env.Ctx, asBuyer, repo.PaymentFilters{TaskID: task.ID})
	if err != nil || len(pays) != 1 {
		t.Fatalf("expected one payment row, got %d (%v)", len(pays), err)
	}
}

func TestDownloadGate(t *testing.T) {
	env := newTestEnv(t)
	task := env.submittedTask(t, 1)
	// unpaid: payment required
	_, err := env.Engine.DownloadSolution(env.Ctx, asBuyer, task.ID)
	var required fault.PaymentRequiredError
	if !errors.As(err, &required) {
		t.Fatalf("expected payment required, got %v", err)
	}
	if _, err := env.Engine.PayTask(env.Ctx, asBuyer, task.ID); err != nil {
		t.Fatal(err)
	}
	// wrong buyer stays forbidden even after payment
	_, err = env.Engine.DownloadSolution(env.Ctx, asOtherBuyer, task.ID)
	var forbidden fault.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	data, err := env.Engine.DownloadSolution(env.Ctx, asBuyer, task.ID)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(data) != "archive bytes" {
		t.Fatalf("unexpected archive contents: %q", data)
	}
}

func TestPaymentVisibilityScoped(t *testing.T) {
	env := newTestEnv(t)
	task := env.submittedTask(t, 1)
	pay, err := env.Engine.PayTask(env.Ctx, asBuyer, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.GetPayment(env.Ctx, asDev, pay.ID); err != nil {
		t.Fatalf("developer should see own payment: %v", err)
	}
	if _, err := env.Engine.GetPayment(env.Ctx, asOtherDev, pay.ID); err == nil {
		t.Fatalf("expected forbidden for unrelated actor")
	}
	if _, err := env.Engine.GetPayment(env.Ctx, asAdmin, pay.ID); err != nil {
		t.Fatalf("admin should see payment: %v", err)
	}
}

func TestPaymentListingCursorPagination(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 2; i++ {
		task := env.submittedTask(t, 1)
		if _, err := env.Engine.PayTask(env.Ctx, asBuyer, task.ID); err != nil {
			t.Fatal(err)
		}
	}
	first, err := env.Engine.ListPayments(env.Ctx, asBuyer, repo.PaymentFilters{Limit: 1})
	if err != nil || len(first) != 1 {
		t.Fatalf("first page: %v (%d rows)", err, len(first))
	}
	second, err := env.Engine.ListPayments(env.Ctx, asBuyer, repo.PaymentFilters{
		Limit:           1,
		CursorCreatedAt: first[0].CreatedAt,
		CursorID:        first[0].ID,
	})
	if err != nil || len(second) != 1 {
		t.Fatalf("second page: %v (%d rows)", err, len(second))
	}
	if second[0].ID == first[0].ID {
		t.Fatalf("pages overlap on payment %s", first[0].ID)
	}
	third, err := env.Engine.ListPayments(env.Ctx, asBuyer, repo.PaymentFilters{
		Limit:           1,
		CursorCreatedAt: second[0].CreatedAt,
		CursorID:        second[0].ID,
	})
	if err != nil || len(third) != 0 {
		t.Fatalf("expected exhausted listing, got %d rows (%v)", len(third), err)
	}
}

func TestEventLedgerAppends(t *testing.T) {
	env := newTestEnv(t)
	task := env.submittedTask(t, 1)
	if _, err := env.Engine.PayTask(env.Ctx, asBuyer, task.ID); err != nil {
		t.Fatal(err)
	}
	events, err := env.Engine.ListEvents(env.Ctx, asAdmin, 50, 0, "", "", "")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	types := map[string]bool{}
	for _, e := range events {
		types[e.Type] = true
	}
	for _, want := range []string{"project.created", "task.assigned", "task.started", "task.submitted", "payment.recorded"} {
		if !types[want] {
			t.Fatalf("missing event %s in ledger (got %v)", want, types)
		}
	}
	// the ledger is admin only
	if _, err := env.Engine.ListEvents(env.Ctx, asBuyer, 50, 0, "", "", ""); err == nil {
		t.Fatalf("expected forbidden for non-admin ledger read")
	}
}

func TestStatsAggregation(t *testing.T) {
	env := newTestEnv(t)
	task := env.submittedTask(t, 2)
	if _, err := env.Engine.PayTask(env.Ctx, asBuyer, task.ID); err != nil {
		t.Fatal(err)
	}
	// a second submission left unpaid and a task never picked up
	env.submittedTask(t, 1)
	p := env.openProject(t, 80)
	if _, err := env.Engine.AssignTask(env.Ctx, asBuyer, engine.TaskAssignOptions{
		ProjectID: p.ID, DeveloperID: "dev-2", Title: "untouched work",
	}); err != nil {
		t.Fatal(err)
	}
	stats, err := env.Engine.Stats(env.Ctx, asAdmin)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalBuyers != 2 || stats.TotalDevelopers != 2 {
		t.Fatalf("actor counts wrong: %+v", stats)
	}
	if stats.TotalTasks != 3 {
		t.Fatalf("expected 3 tasks, got %+v", stats)
	}
	// pending counts only submitted-unpaid work, never assigned or in_progress
	if stats.PendingTasks != 1 {
		t.Fatalf("expected 1 pending task, got %d (by status: %v)", stats.PendingTasks, stats.TasksByStatus)
	}
	if stats.TotalPayments != 1 || stats.TotalRevenue != 160 {
		t.Fatalf("payment aggregates wrong: %+v", stats)
	}
	if stats.TotalHoursPaid != 2 {
		t.Fatalf("hours paid wrong: %+v", stats)
	}
	if _, err := env.Engine.Stats(env.Ctx, asDev); err == nil {
		t.Fatalf("expected forbidden for non-admin stats")
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	env := newTestEnv(t)
	key, plaintext, err := env.Engine.CreateAPIKey(env.Ctx, asDev, "", "laptop")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	if plaintext == "" || key.KeyHash == plaintext {
		t.Fatalf("expected hashed storage with plaintext returned once")
	}
	got, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(plaintext))
	if err != nil || got.ActorID != "dev-1" {
		t.Fatalf("lookup by hash: %v", err)
	}
	// a developer cannot mint keys for someone else
	if _, _, err := env.Engine.CreateAPIKey(env.Ctx, asDev, "buyer-1", "sneaky"); err == nil {
		t.Fatalf("expected forbidden")
	}
	if err := env.Engine.DeleteAPIKey(env.Ctx, asDev, key.ID); err != nil {
		t.Fatalf("delete key: %v", err)
	}
	if _, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(plaintext)); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected key gone, got %v", err)
	}
}
