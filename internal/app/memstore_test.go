package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"planhub/api/internal/store"
)

// memStore is an in-memory Store mirroring the SQL semantics closely enough
// to exercise reorder, merge and cap behavior without a database.
type memStore struct {
	mu          sync.Mutex
	users       map[uuid.UUID]*store.User
	devices     map[uuid.UUID]*store.Device
	plans       map[uuid.UUID]*memPlan
	tasks       map[uuid.UUID]*store.Task
	members     map[uuid.UUID]map[uuid.UUID]time.Time
	suggestions map[uuid.UUID]*store.SuggestedEmail
	traffic     []store.Traffic
	logs        []store.LogEntry
	clock       time.Time
}

type memPlan struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Title       *string
	Type        string
	SortOrder   int
	Starts      *time.Time
	Ends        *time.Time
	DonePercent string
}

func newMemStore() *memStore {
	return &memStore{
		users:       make(map[uuid.UUID]*store.User),
		devices:     make(map[uuid.UUID]*store.Device),
		plans:       make(map[uuid.UUID]*memPlan),
		tasks:       make(map[uuid.UUID]*store.Task),
		members:     make(map[uuid.UUID]map[uuid.UUID]time.Time),
		suggestions: make(map[uuid.UUID]*store.SuggestedEmail),
		clock:       time.Unix(1_700_000_000, 0),
	}
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memStore) InTx(ctx context.Context, fn func(store.Store) error) error {
	return fn(m)
}

func (m *memStore) Ping(ctx context.Context) error { return nil }

func (m *memStore) CreateUser(ctx context.Context) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.users[id] = &store.User{ID: id}
	return id, nil
}

func (m *memStore) GetUser(ctx context.Context, id uuid.UUID) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

func (m *memStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email != nil && *user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memStore) UpdateUserName(ctx context.Context, id uuid.UUID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.users[id]; ok {
		user.Name = &name
	}
	return nil
}

func (m *memStore) UpdateUserEmail(ctx context.Context, id uuid.UUID, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.users[id]; ok {
		user.Email = &email
	}
	return nil
}

func (m *memStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	for deviceID, device := range m.devices {
		if device.UserID == id {
			delete(m.devices, deviceID)
		}
	}
	for planID, plan := range m.plans {
		if plan.UserID == id {
			m.deletePlanLocked(planID)
		}
	}
	for planID, byUser := range m.members {
		delete(byUser, id)
		if len(byUser) == 0 {
			delete(m.members, planID)
		}
	}
	for sid, suggestion := range m.suggestions {
		if suggestion.UserID == id {
			delete(m.suggestions, sid)
		}
	}
	return nil
}

func (m *memStore) CreateDevice(ctx context.Context, device store.Device) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	device.ID = uuid.New()
	device.CreatedAt = m.tick()
	m.devices[device.ID] = &device
	return device.ID, nil
}

func (m *memStore) GetDevice(ctx context.Context, id uuid.UUID) (*store.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	device, ok := m.devices[id]
	if !ok {
		return nil, nil
	}
	copied := *device
	return &copied, nil
}

func (m *memStore) ListDevices(ctx context.Context, userID uuid.UUID) ([]store.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	devices := make([]store.Device, 0)
	for _, device := range m.devices {
		if device.UserID == userID {
			devices = append(devices, *device)
		}
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].CreatedAt.After(devices[j].CreatedAt)
	})
	return devices, nil
}

func (m *memStore) DeleteDevice(ctx context.Context, id uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[id]; !ok {
		return 0, nil
	}
	delete(m.devices, id)
	return 1, nil
}

func (m *memStore) DeleteDeviceByFingerprint(ctx context.Context, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, device := range m.devices {
		if device.Fingerprint == fingerprint {
			delete(m.devices, id)
		}
	}
	return nil
}

func (m *memStore) ReassignDevice(ctx context.Context, deviceID, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if device, ok := m.devices[deviceID]; ok {
		device.UserID = userID
	}
	return nil
}

func (m *memStore) CreatePlan(ctx context.Context, userID uuid.UUID, draft store.PlanDraft) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.plans[id] = &memPlan{
		ID:          id,
		UserID:      userID,
		Title:       draft.Title,
		Type:        store.PlanTypeMain,
		SortOrder:   m.countPlansLocked(userID, store.PlanTypeMain),
		Starts:      draft.Starts,
		Ends:        draft.Ends,
		DonePercent: "0/0",
	}
	return id, nil
}

func (m *memStore) GetPlan(ctx context.Context, id uuid.UUID) (*store.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	plan, ok := m.plans[id]
	if !ok {
		return nil, nil
	}
	view := m.planViewLocked(plan)
	return &view, nil
}

func (m *memStore) planViewLocked(plan *memPlan) store.Plan {
	donePercent := plan.DonePercent
	view := store.Plan{
		ID:          plan.ID,
		Title:       plan.Title,
		Type:        plan.Type,
		SortOrder:   plan.SortOrder,
		Starts:      plan.Starts,
		Ends:        plan.Ends,
		DonePercent: &donePercent,
		IsShared:    len(m.members[plan.ID]) > 0,
	}
	if owner, ok := m.users[plan.UserID]; ok {
		view.User = *owner
	}
	return view
}

func (m *memStore) ListPlans(ctx context.Context, userID uuid.UUID, planType string) ([]store.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	plans := make([]store.Plan, 0)
	for _, plan := range m.plans {
		if plan.UserID == userID && plan.Type == planType {
			plans = append(plans, m.planViewLocked(plan))
		}
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].SortOrder > plans[j].SortOrder })
	return plans, nil
}

func (m *memStore) UpdatePlan(ctx context.Context, draft store.PlanDraft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if plan, ok := m.plans[draft.ID]; ok {
		plan.Title = draft.Title
		plan.Starts = draft.Starts
		plan.Ends = draft.Ends
	}
	return nil
}

func (m *memStore) DeletePlan(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletePlanLocked(id)
	return nil
}

func (m *memStore) deletePlanLocked(id uuid.UUID) {
	delete(m.plans, id)
	delete(m.members, id)
	for taskID, task := range m.tasks {
		if task.PlanID == id {
			delete(m.tasks, taskID)
		}
	}
}

func (m *memStore) CountPlans(ctx context.Context, userID uuid.UUID, planType string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countPlansLocked(userID, planType), nil
}

func (m *memStore) countPlansLocked(userID uuid.UUID, planType string) int {
	count := 0
	for _, plan := range m.plans {
		if plan.UserID == userID && plan.Type == planType {
			count++
		}
	}
	return count
}

func (m *memStore) CompactPlanOrder(ctx context.Context, userID, planID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed, ok := m.plans[planID]
	if !ok {
		return nil
	}
	for _, plan := range m.plans {
		if plan.UserID == userID && plan.Type == removed.Type && plan.SortOrder > removed.SortOrder {
			plan.SortOrder--
		}
	}
	return nil
}

func (m *memStore) MovePlanOrder(ctx context.Context, userID uuid.UUID, planType string, oldOrder, newOrder int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, plan := range m.plans {
		if plan.UserID != userID || plan.Type != planType {
			continue
		}
		plan.SortOrder = shift(plan.SortOrder, oldOrder, newOrder)
	}
	return nil
}

func shift(current, oldOrder, newOrder int) int {
	switch {
	case current == oldOrder:
		return newOrder
	case current > oldOrder && current <= newOrder:
		return current - 1
	case current >= newOrder && current < oldOrder:
		return current + 1
	default:
		return current
	}
}

func (m *memStore) ChangePlanType(ctx context.Context, userID, planID uuid.UUID, planType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	plan, ok := m.plans[planID]
	if !ok {
		return nil
	}
	plan.SortOrder = m.countPlansLocked(userID, planType)
	plan.Type = planType
	return nil
}

func (m *memStore) ReassignPlans(ctx context.Context, fromUserID, toUserID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	offsets := map[string]int{
		store.PlanTypeMain:     m.countPlansLocked(toUserID, store.PlanTypeMain),
		store.PlanTypeArchived: m.countPlansLocked(toUserID, store.PlanTypeArchived),
	}
	for _, plan := range m.plans {
		if plan.UserID == fromUserID {
			plan.UserID = toUserID
			plan.SortOrder += offsets[plan.Type]
		}
	}
	return nil
}

func (m *memStore) RefreshPlanDonePercent(ctx context.Context, planID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	plan, ok := m.plans[planID]
	if !ok {
		return nil
	}
	done, total := 0, 0
	for _, task := range m.tasks {
		if task.PlanID == planID {
			total++
			if task.Done {
				done++
			}
		}
	}
	plan.DonePercent = fmt.Sprintf("%d/%d", done, total)
	return nil
}

func (m *memStore) AddPlanMember(ctx context.Context, planID, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[planID] == nil {
		m.members[planID] = make(map[uuid.UUID]time.Time)
	}
	if _, ok := m.members[planID][userID]; !ok {
		m.members[planID][userID] = m.tick()
	}
	return nil
}

func (m *memStore) RemovePlanMember(ctx context.Context, planID, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byUser, ok := m.members[planID]
	if !ok {
		return 0, nil
	}
	if _, ok := byUser[userID]; !ok {
		return 0, nil
	}
	delete(byUser, userID)
	if len(byUser) == 0 {
		delete(m.members, planID)
	}
	return 1, nil
}

func (m *memStore) ListPlanMembers(ctx context.Context, planID uuid.UUID) ([]store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	type memberAt struct {
		user store.User
		at   time.Time
	}
	joined := make([]memberAt, 0)
	for userID, at := range m.members[planID] {
		if user, ok := m.users[userID]; ok {
			joined = append(joined, memberAt{user: *user, at: at})
		}
	}
	sort.Slice(joined, func(i, j int) bool { return joined[i].at.Before(joined[j].at) })
	users := make([]store.User, 0, len(joined))
	for _, member := range joined {
		users = append(users, member.user)
	}
	return users, nil
}

func (m *memStore) ListSharedPlans(ctx context.Context, userID uuid.UUID) ([]store.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	type planAt struct {
		plan store.Plan
		at   time.Time
	}
	joined := make([]planAt, 0)
	for planID, byUser := range m.members {
		at, ok := byUser[userID]
		if !ok {
			continue
		}
		if plan, found := m.plans[planID]; found {
			joined = append(joined, planAt{plan: m.planViewLocked(plan), at: at})
		}
	}
	sort.Slice(joined, func(i, j int) bool { return joined[i].at.Before(joined[j].at) })
	plans := make([]store.Plan, 0, len(joined))
	for _, shared := range joined {
		plans = append(plans, shared.plan)
	}
	return plans, nil
}

func (m *memStore) CountPlanMembers(ctx context.Context, planID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.members[planID]), nil
}

func (m *memStore) CountSharedPlans(ctx context.Context, ownerID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for planID, byUser := range m.members {
		if len(byUser) == 0 {
			continue
		}
		if plan, ok := m.plans[planID]; ok && plan.UserID == ownerID {
			count++
		}
	}
	return count, nil
}

func (m *memStore) CreateTask(ctx context.Context, planID uuid.UUID, title string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.tasks[id] = &store.Task{
		ID:        id,
		PlanID:    planID,
		Title:     title,
		SortOrder: m.countTasksLocked(planID),
		CreatedAt: m.tick(),
	}
	return id, nil
}

func (m *memStore) GetTask(ctx context.Context, id uuid.UUID) (*store.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	copied := *task
	return &copied, nil
}

func (m *memStore) ListTasks(ctx context.Context, planID uuid.UUID) ([]store.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tasks := make([]store.Task, 0)
	for _, task := range m.tasks {
		if task.PlanID == planID {
			tasks = append(tasks, *task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].SortOrder < tasks[j].SortOrder })
	return tasks, nil
}

func (m *memStore) DeleteTask(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
	return nil
}

func (m *memStore) UpdateTaskTitle(ctx context.Context, id uuid.UUID, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task, ok := m.tasks[id]; ok {
		task.Title = title
	}
	return nil
}

func (m *memStore) UpdateTaskDone(ctx context.Context, id uuid.UUID, done bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task, ok := m.tasks[id]; ok {
		task.Done = done
	}
	return nil
}

func (m *memStore) CountTasks(ctx context.Context, planID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countTasksLocked(planID), nil
}

func (m *memStore) countTasksLocked(planID uuid.UUID) int {
	count := 0
	for _, task := range m.tasks {
		if task.PlanID == planID {
			count++
		}
	}
	return count
}

func (m *memStore) CompactTaskOrder(ctx context.Context, planID, taskID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed, ok := m.tasks[taskID]
	if !ok {
		return nil
	}
	for _, task := range m.tasks {
		if task.PlanID == planID && task.SortOrder > removed.SortOrder {
			task.SortOrder--
		}
	}
	return nil
}

func (m *memStore) MoveTaskOrder(ctx context.Context, planID uuid.UUID, oldOrder, newOrder int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, task := range m.tasks {
		if task.PlanID == planID {
			task.SortOrder = shift(task.SortOrder, oldOrder, newOrder)
		}
	}
	return nil
}

func (m *memStore) CreateSuggestedEmail(ctx context.Context, userID uuid.UUID, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, suggestion := range m.suggestions {
		if suggestion.UserID == userID && suggestion.Email == email {
			return nil
		}
	}
	id := uuid.New()
	m.suggestions[id] = &store.SuggestedEmail{ID: id, UserID: userID, Email: email, CreatedAt: m.tick()}
	return nil
}

func (m *memStore) ListSuggestedEmails(ctx context.Context, userID uuid.UUID) ([]store.SuggestedEmail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	suggestions := make([]store.SuggestedEmail, 0)
	for _, suggestion := range m.suggestions {
		if suggestion.UserID == userID {
			suggestions = append(suggestions, *suggestion)
		}
	}
	sort.Slice(suggestions, func(i, j int) bool {
		return suggestions[i].CreatedAt.After(suggestions[j].CreatedAt)
	})
	return suggestions, nil
}

func (m *memStore) GetSuggestedEmail(ctx context.Context, id uuid.UUID) (*store.SuggestedEmail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	suggestion, ok := m.suggestions[id]
	if !ok {
		return nil, nil
	}
	copied := *suggestion
	return &copied, nil
}

func (m *memStore) DeleteSuggestedEmail(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.suggestions, id)
	return nil
}

func (m *memStore) DeleteSuggestedEmailsByEmail(ctx context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, suggestion := range m.suggestions {
		if suggestion.Email == email {
			delete(m.suggestions, id)
		}
	}
	return nil
}

func (m *memStore) InsertHealth(ctx context.Context, health store.Health) error { return nil }

func (m *memStore) UpdateHealthPulse(ctx context.Context, id uuid.UUID) error { return nil }

func (m *memStore) UpdateHealthStopped(ctx context.Context, id uuid.UUID) error { return nil }

func (m *memStore) InsertTraffic(ctx context.Context, traffic store.Traffic) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.traffic = append(m.traffic, traffic)
	return nil
}

func (m *memStore) InsertLog(ctx context.Context, entry store.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, entry)
	return nil
}
