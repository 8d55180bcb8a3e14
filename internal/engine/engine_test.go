package engine_test

import (
	"campusskill/backend/internal/apperror"
	"campusskill/backend/internal/auth"
	"campusskill/backend/internal/chat"
	"campusskill/backend/internal/engine"
	"campusskill/backend/internal/ledger"
	"campusskill/backend/internal/localization"
	"campusskill/backend/internal/models"
	"campusskill/backend/internal/storage"
	"campusskill/backend/internal/testutil"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type recordingNotifier struct {
	mu       sync.Mutex
	notified map[string][]models.Notification
	relayed  map[string][]*models.Message
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		notified: make(map[string][]models.Notification),
		relayed:  make(map[string][]*models.Message),
	}
}

func (r *recordingNotifier) NotifyUser(_ context.Context, userID string, n models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notified[userID] = append(r.notified[userID], n)
}

func (r *recordingNotifier) RelayMessage(_ context.Context, roomID string, msg *models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.relayed[roomID] = append(r.relayed[roomID], msg)
}

func (r *recordingNotifier) For(userID string) []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Notification(nil), r.notified[userID]...)
}

type fixture struct {
	store    *storage.Service
	engine   *engine.Engine
	ledger   *ledger.Ledger
	chat     *chat.Manager
	notifier *recordingNotifier

	teacher  auth.Identity
	studentA auth.Identity
	studentB auth.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewStorageService(testutil.NewTestDB(t, storage.Models()...), nil)
	texts, err := localization.NewLocalizer()
	require.NoError(t, err)

	f := &fixture{store: store, notifier: newRecordingNotifier()}
	f.ledger = ledger.New(store, nil)
	f.chat = chat.NewManager(store, nil)
	f.engine = engine.New(store, f.ledger, f.chat, f.notifier, texts, nil)

	f.teacher = f.seedUser(t, "Teacher", models.RoleTeacher)
	f.studentA = f.seedUser(t, "Alice", models.RoleStudent)
	f.studentB = f.seedUser(t, "Bob", models.RoleStudent)
	return f
}

func (f *fixture) seedUser(t *testing.T, name string, role models.Role) auth.Identity {
	t.Helper()
	u := &models.User{Name: name, Email: name + "@campus.test", Role: role}
	require.NoError(t, f.store.CreateUser(context.Background(), u))
	return auth.Identity{UserID: u.ID, Role: role}
}

func (f *fixture) createTask(t *testing.T, poster auth.Identity, credit *int) *models.Task {
	t.Helper()
	task, err := f.engine.Create(context.Background(), poster, engine.CreateInput{
		Title:        "Grade lab reports",
		Description:  "Check twelve lab reports against the rubric",
		Skills:       []string{"physics"},
		Deadline:     time.Now().Add(72 * time.Hour),
		CreditPoints: credit,
	})
	require.NoError(t, err)
	return task
}

func (f *fixture) user(t *testing.T, id string) *models.User {
	t.Helper()
	u, err := f.store.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (f *fixture) task(t *testing.T, id string) *models.Task {
	t.Helper()
	task, err := f.store.GetTask(context.Background(), id)
	require.NoError(t, err)
	return task
}

func intPtr(v int) *int { return &v }

func TestCompletionScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.createTask(t, f.teacher, intPtr(20))
	assert.Equal(t, 20, task.CreditPoints)
	assert.Equal(t, models.TaskOpen, task.Status)

	taken, err := f.engine.Take(ctx, f.studentA, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskInProgress, taken.Status)
	require.NotNil(t, taken.TakenBy)
	assert.Equal(t, f.studentA.UserID, *taken.TakenBy)
	require.NotNil(t, taken.ChatRoomID)

	room, err := f.chat.GetRoom(ctx, *taken.ChatRoomID, f.teacher.UserID)
	require.NoError(t, err)
	require.Len(t, room.Messages, 1)
	assert.Equal(t, models.MessageSystem, room.Messages[0].MessageType)
	assert.Equal(t, "Alice has taken this task", room.Messages[0].Content)

	submitted, err := f.engine.Submit(ctx, f.studentA, task.ID, engine.SubmitInput{Content: "done"})
	require.NoError(t, err)
	assert.Equal(t, models.TaskSubmitted, submitted.Status)
	assert.Equal(t, "done", submitted.Submission.Content)
	assert.NotNil(t, submitted.Submission.SubmittedAt)

	before := f.user(t, f.studentA.UserID)
	completed, err := f.engine.Review(ctx, f.teacher, task.ID, engine.ReviewInput{Satisfied: true, Feedback: "great", Rating: intPtr(5)})
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, completed.Status)
	require.NotNil(t, completed.Review.Satisfied)
	assert.True(t, *completed.Review.Satisfied)

	alice := f.user(t, f.studentA.UserID)
	assert.Equal(t, 20, alice.CreditPoints)
	assert.Zero(t, alice.RatingPoints)
	assert.Equal(t, before.TotalPoints+20, alice.TotalPoints, "completion raises total by the credit only")
	assert.Equal(t, 1, alice.TasksCompleted)
	assert.Equal(t, 5.0, alice.AverageRating)

	ratings, err := f.store.CountRatings(ctx, f.studentA.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ratings)

	room, err = f.chat.GetRoom(ctx, *taken.ChatRoomID, f.teacher.UserID)
	require.NoError(t, err)
	assert.False(t, room.IsActive)
	require.Len(t, room.Messages, 3)
	assert.Equal(t, "Work has been submitted for review", room.Messages[1].Content)
	assert.Equal(t, "Task completed! 20 credits awarded.", room.Messages[2].Content)

	// Notifications: taken and submitted to the poster, completed to the taker.
	posterNotes := f.notifier.For(f.teacher.UserID)
	require.Len(t, posterNotes, 2)
	assert.Equal(t, models.NotifyTaskTaken, posterNotes[0].Type)
	assert.Equal(t, models.NotifyTaskSubmitted, posterNotes[1].Type)
	takerNotes := f.notifier.For(f.studentA.UserID)
	require.Len(t, takerNotes, 1)
	assert.Equal(t, models.NotifyTaskCompleted, takerNotes[0].Type)
	require.NotNil(t, takerNotes[0].Credits)
	assert.Equal(t, 20, *takerNotes[0].Credits)
}

func TestReview_RetryDoesNotCreditTwice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.createTask(t, f.teacher, intPtr(20))

	_, err := f.engine.Take(ctx, f.studentA, task.ID)
	require.NoError(t, err)
	_, err = f.engine.Submit(ctx, f.studentA, task.ID, engine.SubmitInput{Content: "done"})
	require.NoError(t, err)

	review := engine.ReviewInput{Satisfied: true}
	_, err = f.engine.Review(ctx, f.teacher, task.ID, review)
	require.NoError(t, err)
	_, err = f.engine.Review(ctx, f.teacher, task.ID, review)
	assert.True(t, apperror.IsInvalidState(err), "got %v", err)

	alice := f.user(t, f.studentA.UserID)
	assert.Equal(t, 20, alice.CreditPoints)
	assert.Equal(t, 20, alice.TotalPoints)
	assert.Equal(t, 1, alice.TasksCompleted)
}

func TestReview_UnsatisfiedStaysSubmitted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.createTask(t, f.teacher, nil)

	_, err := f.engine.Take(ctx, f.studentA, task.ID)
	require.NoError(t, err)
	_, err = f.engine.Submit(ctx, f.studentA, task.ID, engine.SubmitInput{Content: "draft"})
	require.NoError(t, err)

	got, err := f.engine.Review(ctx, f.teacher, task.ID, engine.ReviewInput{Satisfied: false, Feedback: "needs citations", Rating: intPtr(2)})
	require.NoError(t, err)
	assert.Equal(t, models.TaskSubmitted, got.Status)
	require.NotNil(t, got.Review.Satisfied)
	assert.False(t, *got.Review.Satisfied)
	assert.Equal(t, "needs citations", got.Review.Feedback)

	alice := f.user(t, f.studentA.UserID)
	assert.Zero(t, alice.TotalPoints)
	assert.Zero(t, alice.TasksCompleted)
	n, err := f.store.CountRatings(ctx, f.studentA.UserID)
	require.NoError(t, err)
	assert.Zero(t, n, "a rating only counts on a satisfied review")

	// A later satisfied review still completes the task.
	got, err = f.engine.Review(ctx, f.teacher, task.ID, engine.ReviewInput{Satisfied: true})
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, got.Status)
	assert.Equal(t, 20, f.user(t, f.studentA.UserID).CreditPoints)
}

func TestReview_Guards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.createTask(t, f.teacher, nil)

	_, err := f.engine.Take(ctx, f.studentA, task.ID)
	require.NoError(t, err)

	_, err = f.engine.Review(ctx, f.teacher, task.ID, engine.ReviewInput{Satisfied: true})
	assert.True(t, apperror.IsInvalidState(err), "review before submit, got %v", err)

	_, err = f.engine.Submit(ctx, f.studentA, task.ID, engine.SubmitInput{Content: "done"})
	require.NoError(t, err)

	_, err = f.engine.Review(ctx, f.studentA, task.ID, engine.ReviewInput{Satisfied: true})
	assert.True(t, apperror.IsForbidden(err))

	_, err = f.engine.Review(ctx, f.teacher, task.ID, engine.ReviewInput{Satisfied: true, Rating: intPtr(9)})
	assert.True(t, apperror.IsValidation(err))

	assert.Equal(t, models.TaskSubmitted, f.task(t, task.ID).Status)
}

// A standalone rating for the same task blocks the rating carried by the
// review, and the whole review rolls back.
func TestReview_DuplicateRatingRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.createTask(t, f.teacher, intPtr(20))

	_, err := f.engine.Take(ctx, f.studentA, task.ID)
	require.NoError(t, err)
	_, err = f.engine.Submit(ctx, f.studentA, task.ID, engine.SubmitInput{Content: "done"})
	require.NoError(t, err)

	taskRef := task.ID
	_, err = f.ledger.RecordRating(ctx, f.studentA.UserID, ledger.RatingInput{Rating: 4, RatedBy: f.teacher.UserID, TaskID: &taskRef})
	require.NoError(t, err)

	_, err = f.engine.Review(ctx, f.teacher, task.ID, engine.ReviewInput{Satisfied: true, Rating: intPtr(5)})
	assert.True(t, apperror.IsDuplicateRating(err), "got %v", err)

	got := f.task(t, task.ID)
	assert.Equal(t, models.TaskSubmitted, got.Status)
	assert.Nil(t, got.Review.Satisfied)
	alice := f.user(t, f.studentA.UserID)
	assert.Zero(t, alice.CreditPoints)
	assert.Zero(t, alice.RatingPoints)

	room, err := f.chat.GetRoom(ctx, *got.ChatRoomID, f.teacher.UserID)
	require.NoError(t, err)
	assert.True(t, room.IsActive)
}

func TestReassignScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.createTask(t, f.teacher, nil)

	taken, err := f.engine.Take(ctx, f.studentA, task.ID)
	require.NoError(t, err)
	oldRoom := *taken.ChatRoomID

	got, err := f.engine.Reassign(ctx, f.teacher, task.ID, "missed deadline")
	require.NoError(t, err)
	assert.Equal(t, models.TaskReassigned, got.Status)
	assert.Nil(t, got.TakenBy)
	assert.Nil(t, got.ChatRoomID)
	assert.Equal(t, 1, got.ReassignCount)
	require.Len(t, got.PreviousAssignees, 1)
	assert.Equal(t, f.studentA.UserID, got.PreviousAssignees[0].UserID)
	assert.Equal(t, "missed deadline", got.PreviousAssignees[0].Reason)
	assert.Empty(t, got.Submission.Content)
	assert.Nil(t, got.Review.Satisfied)

	room, err := f.chat.GetRoom(ctx, oldRoom, f.teacher.UserID)
	require.NoError(t, err)
	assert.False(t, room.IsActive)
	assert.Equal(t, "Task has been reassigned. Reason: missed deadline", room.Messages[len(room.Messages)-1].Content)

	_, err = f.engine.Take(ctx, f.studentA, task.ID)
	assert.True(t, apperror.IsAlreadyAssigned(err), "got %v", err)

	// Someone else may take it and gets a fresh room.
	retaken, err := f.engine.Take(ctx, f.studentB, task.ID)
	require.NoError(t, err)
	require.NotNil(t, retaken.ChatRoomID)
	assert.NotEqual(t, oldRoom, *retaken.ChatRoomID)
}

func TestReassign_FromSubmittedWithDefaultReason(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.createTask(t, f.teacher, nil)

	taken, err := f.engine.Take(ctx, f.studentA, task.ID)
	require.NoError(t, err)
	_, err = f.engine.Submit(ctx, f.studentA, task.ID, engine.SubmitInput{Content: "done"})
	require.NoError(t, err)

	_, err = f.engine.Reassign(ctx, f.studentA, task.ID, "")
	assert.True(t, apperror.IsForbidden(err))

	got, err := f.engine.Reassign(ctx, f.teacher, task.ID, "  ")
	require.NoError(t, err)
	assert.Equal(t, "Task reassigned", got.PreviousAssignees[0].Reason)
	assert.Empty(t, got.Submission.Content)
	assert.Nil(t, got.Submission.SubmittedAt)

	room, err := f.chat.GetRoom(ctx, *taken.ChatRoomID, f.teacher.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Task has been reassigned. Reason: Not specified", room.Messages[len(room.Messages)-1].Content)

	_, err = f.engine.Reassign(ctx, f.teacher, task.ID, "again")
	assert.True(t, apperror.IsInvalidState(err))
}

func TestTake_Guards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.createTask(t, f.teacher, nil)

	_, err := f.engine.Take(ctx, f.teacher, task.ID)
	assert.True(t, apperror.IsForbidden(err), "self-take, got %v", err)

	_, err = f.engine.Take(ctx, f.studentA, "missing")
	assert.True(t, apperror.IsNotFound(err))

	_, err = f.engine.Take(ctx, f.studentA, task.ID)
	require.NoError(t, err)

	_, err = f.engine.Take(ctx, f.studentB, task.ID)
	assert.True(t, apperror.IsInvalidState(err))

	_, err = f.engine.Submit(ctx, f.studentB, task.ID, engine.SubmitInput{Content: "mine"})
	assert.True(t, apperror.IsForbidden(err))

	_, err = f.engine.Submit(ctx, f.studentA, task.ID, engine.SubmitInput{Content: "   "})
	assert.True(t, apperror.IsValidation(err))
}

func TestTake_ConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.createTask(t, f.teacher, nil)

	takers := []auth.Identity{f.studentA, f.studentB}
	errs := make([]error, len(takers))
	var g errgroup.Group
	for i, who := range takers {
		g.Go(func() error {
			_, errs[i] = f.engine.Take(ctx, who, task.ID)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, apperror.IsInvalidState(err) || apperror.IsConflict(err), "loser got %v", err)
	}
	assert.Equal(t, 1, wins)

	got := f.task(t, task.ID)
	require.NotNil(t, got.TakenBy)
	rooms, err := f.store.ListRoomsForUser(ctx, f.teacher.UserID)
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
}

// staleStore serves a fixed snapshot of one task, as if the reader loaded it
// just before another writer committed.
type staleStore struct {
	storage.Storage
	snapshot *models.Task
}

func (s *staleStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	if id == s.snapshot.ID {
		c := *s.snapshot
		return &c, nil
	}
	return s.Storage.GetTask(ctx, id)
}

func (s *staleStore) Transaction(ctx context.Context, fn func(tx storage.Storage) error) error {
	return s.Storage.Transaction(ctx, func(tx storage.Storage) error {
		return fn(&staleStore{Storage: tx, snapshot: s.snapshot})
	})
}

func TestTake_LostRaceIsConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.createTask(t, f.teacher, nil)
	snapshot := f.task(t, task.ID)

	_, err := f.engine.Take(ctx, f.studentA, task.ID)
	require.NoError(t, err)

	stale := *f.engine
	stale.Store = &staleStore{Storage: f.store, snapshot: snapshot}
	_, err = stale.Take(ctx, f.studentB, task.ID)
	assert.True(t, apperror.IsConflict(err), "got %v", err)

	got := f.task(t, task.ID)
	require.NotNil(t, got.TakenBy)
	assert.Equal(t, f.studentA.UserID, *got.TakenBy, "the winner's assignment must survive")
	rooms, err := f.store.ListRoomsForUser(ctx, f.studentB.UserID)
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	defaulted := f.createTask(t, f.teacher, nil)
	assert.Equal(t, 20, defaulted.CreditPoints)
	assert.Equal(t, models.RoleTeacher, defaulted.PosterRole)

	studentTask := f.createTask(t, f.studentA, intPtr(50))
	assert.Zero(t, studentTask.CreditPoints, "students cannot attach credit")

	assert.Equal(t, 1, f.user(t, f.teacher.UserID).TasksPosted)
	assert.Equal(t, 1, f.user(t, f.studentA.UserID).TasksPosted)

	valid := engine.CreateInput{Title: "t", Description: "d", Skills: []string{"go"}, Deadline: time.Now().Add(time.Hour)}
	cases := map[string]func(in *engine.CreateInput){
		"blank title":     func(in *engine.CreateInput) { in.Title = "  " },
		"no skills":       func(in *engine.CreateInput) { in.Skills = []string{" "} },
		"past deadline":   func(in *engine.CreateInput) { in.Deadline = time.Now().Add(-time.Hour) },
		"no deadline":     func(in *engine.CreateInput) { in.Deadline = time.Time{} },
		"negative credit": func(in *engine.CreateInput) { in.CreditPoints = intPtr(-5) },
		"no description":  func(in *engine.CreateInput) { in.Description = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := valid
			mutate(&in)
			_, err := f.engine.Create(ctx, f.teacher, in)
			assert.True(t, apperror.IsValidation(err), "got %v", err)
		})
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	open := f.createTask(t, f.teacher, nil)
	busy := f.createTask(t, f.teacher, nil)

	_, err := f.engine.Take(ctx, f.studentA, busy.ID)
	require.NoError(t, err)

	assert.True(t, apperror.IsForbidden(f.engine.Delete(ctx, f.studentA, open.ID)))
	assert.True(t, apperror.IsInvalidState(f.engine.Delete(ctx, f.teacher, busy.ID)))
	assert.Equal(t, models.TaskInProgress, f.task(t, busy.ID).Status)

	require.NoError(t, f.engine.Delete(ctx, f.teacher, open.ID))
	_, err = f.engine.Get(ctx, open.ID)
	assert.True(t, apperror.IsNotFound(err))
	assert.Equal(t, 1, f.user(t, f.teacher.UserID).TasksPosted)
}

func TestCanTransition(t *testing.T) {
	statuses := []models.TaskStatus{
		models.TaskOpen, models.TaskInProgress, models.TaskSubmitted, models.TaskCompleted, models.TaskReassigned,
	}
	allowed := map[[2]models.TaskStatus]bool{
		{models.TaskOpen, models.TaskInProgress}:       true,
		{models.TaskInProgress, models.TaskSubmitted}:  true,
		{models.TaskInProgress, models.TaskReassigned}: true,
		{models.TaskSubmitted, models.TaskCompleted}:   true,
		{models.TaskSubmitted, models.TaskReassigned}:  true,
		{models.TaskReassigned, models.TaskInProgress}: true,
	}
	for _, from := range statuses {
		for _, to := range statuses {
			assert.Equal(t, allowed[[2]models.TaskStatus{from, to}], engine.CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestReadModels(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.createTask(t, f.teacher, nil)
	f.createTask(t, f.studentB, nil)

	_, err := f.engine.Take(ctx, f.studentA, a.ID)
	require.NoError(t, err)

	mine, err := f.engine.MyTasks(ctx, f.studentA, storage.RelationTaken)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, a.ID, mine[0].ID)

	posted, err := f.engine.ListForUser(ctx, f.teacher.UserID, storage.RelationPosted)
	require.NoError(t, err)
	assert.Len(t, posted, 1)

	open, total, err := f.engine.List(ctx, storage.TaskFilter{Status: models.TaskOpen})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, f.studentB.UserID, open[0].PostedBy)
}
