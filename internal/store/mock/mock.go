// Package mock provides in-memory implementations of the store interfaces
// for testing, with per-method error injection.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ignisattend/ignis/internal/store"
)

// New builds a store wired entirely with mocks.
func New() (*store.Store, *Fixture) {
	f := &Fixture{
		Users:       NewMockUserStore(),
		Courses:     NewMockCourseStore(),
		Sessions:    NewMockSessionStore(),
		Enrollments: NewMockEnrollmentStore(),
		Attendance:  NewMockAttendanceStore(),
		Audit:       NewMockAuditStore(),
		Disputes:    NewMockDisputeStore(),
		Embeddings:  NewMockEmbeddingStore(),
	}
	return &store.Store{
		Users:       f.Users,
		Courses:     f.Courses,
		Sessions:    f.Sessions,
		Enrollments: f.Enrollments,
		Attendance:  f.Attendance,
		Audit:       f.Audit,
		Disputes:    f.Disputes,
		Embeddings:  f.Embeddings,
	}, f
}

// Fixture exposes the concrete mocks behind a store for seeding and
// error injection in tests.
type Fixture struct {
	Users       *MockUserStore
	Courses     *MockCourseStore
	Sessions    *MockSessionStore
	Enrollments *MockEnrollmentStore
	Attendance  *MockAttendanceStore
	Audit       *MockAuditStore
	Disputes    *MockDisputeStore
	Embeddings  *MockEmbeddingStore
}

// MockUserStore is an in-memory store.UserStore.
type MockUserStore struct {
	mu    sync.RWMutex
	users map[string]store.User

	GetError error
}

func NewMockUserStore() *MockUserStore {
	return &MockUserStore{users: make(map[string]store.User)}
}

// AddUser seeds a user.
func (m *MockUserStore) AddUser(u store.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *MockUserStore) GetUser(ctx context.Context, id string) (*store.User, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

// MockCourseStore is an in-memory store.CourseStore.
type MockCourseStore struct {
	mu       sync.RWMutex
	courses  map[string]store.Course
	enrolled map[string]int

	GetError   error
	CountError error
}

func NewMockCourseStore() *MockCourseStore {
	return &MockCourseStore{
		courses:  make(map[string]store.Course),
		enrolled: make(map[string]int),
	}
}

// AddCourse seeds a course.
func (m *MockCourseStore) AddCourse(c store.Course) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courses[c.ID] = c
}

// SetEnrolledCount seeds the enrolled-student count for a course.
func (m *MockCourseStore) SetEnrolledCount(courseID string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrolled[courseID] = n
}

func (m *MockCourseStore) GetCourse(ctx context.Context, id string) (*store.Course, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (m *MockCourseStore) CountEnrolled(ctx context.Context, courseID string) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enrolled[courseID], nil
}

// MockSessionStore is an in-memory store.SessionStore.
type MockSessionStore struct {
	mu       sync.RWMutex
	sessions map[string]store.Session

	GetError    error
	ActiveError error
	CountError  error
}

func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{sessions: make(map[string]store.Session)}
}

// AddSession seeds a session.
func (m *MockSessionStore) AddSession(s store.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

func (m *MockSessionStore) GetSession(ctx context.Context, id string) (*store.Session, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (m *MockSessionStore) ActiveSession(ctx context.Context, courseID string) (*store.Session, error) {
	if m.ActiveError != nil {
		return nil, m.ActiveError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *store.Session
	for id := range m.sessions {
		s := m.sessions[id]
		if s.CourseID != courseID || s.Status != store.SessionActive {
			continue
		}
		if best == nil || s.StartTime.After(best.StartTime) {
			best = &s
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	return best, nil
}

func (m *MockSessionStore) CountByCourse(ctx context.Context, courseID string) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.CourseID == courseID {
			count++
		}
	}
	return count, nil
}

// MockEnrollmentStore is an in-memory store.EnrollmentStore.
type MockEnrollmentStore struct {
	mu       sync.RWMutex
	enrolled map[[2]string]bool

	IsEnrolledError error
}

func NewMockEnrollmentStore() *MockEnrollmentStore {
	return &MockEnrollmentStore{enrolled: make(map[[2]string]bool)}
}

// Enroll seeds an enrollment.
func (m *MockEnrollmentStore) Enroll(studentID, courseID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrolled[[2]string{studentID, courseID}] = true
}

func (m *MockEnrollmentStore) IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error) {
	if m.IsEnrolledError != nil {
		return false, m.IsEnrolledError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enrolled[[2]string{studentID, courseID}], nil
}

// MockAttendanceStore is an in-memory store.AttendanceStore. It mirrors the
// database's (session, student) uniqueness and the session join used for
// course-scoped queries, so it needs a session lookup for LastMark and
// CountByCourse.
type MockAttendanceStore struct {
	mu      sync.RWMutex
	records map[[2]string]store.AttendanceRecord
	course  map[string]string // session id -> course id

	InsertError error
	GetError    error
	LastError   error
	ListError   error
	DeleteError error
	CountError  error
}

func NewMockAttendanceStore() *MockAttendanceStore {
	return &MockAttendanceStore{
		records: make(map[[2]string]store.AttendanceRecord),
		course:  make(map[string]string),
	}
}

// LinkSession teaches the mock which course a session belongs to.
func (m *MockAttendanceStore) LinkSession(sessionID, courseID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.course[sessionID] = courseID
}

func (m *MockAttendanceStore) Insert(ctx context.Context, rec *store.AttendanceRecord) (bool, error) {
	if m.InsertError != nil {
		return false, m.InsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]string{rec.SessionID, rec.StudentID}
	if _, exists := m.records[key]; exists {
		return false, nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = "present"
	}
	m.records[key] = *rec
	return true, nil
}

func (m *MockAttendanceStore) Get(ctx context.Context, sessionID, studentID string) (*store.AttendanceRecord, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[[2]string{sessionID, studentID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

func (m *MockAttendanceStore) LastMark(ctx context.Context, studentID, courseID string) (*store.AttendanceRecord, error) {
	if m.LastError != nil {
		return nil, m.LastError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *store.AttendanceRecord
	for key := range m.records {
		rec := m.records[key]
		if rec.StudentID != studentID || m.course[rec.SessionID] != courseID {
			continue
		}
		if best == nil || rec.Timestamp.After(best.Timestamp) {
			best = &rec
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	return best, nil
}

func (m *MockAttendanceStore) ListBySession(ctx context.Context, sessionID string) ([]store.AttendanceRecord, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.AttendanceRecord
	for key, rec := range m.records {
		if key[0] == sessionID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *MockAttendanceStore) Delete(ctx context.Context, sessionID, studentID string) (bool, error) {
	if m.DeleteError != nil {
		return false, m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]string{sessionID, studentID}
	if _, ok := m.records[key]; !ok {
		return false, nil
	}
	delete(m.records, key)
	return true, nil
}

func (m *MockAttendanceStore) CountByCourse(ctx context.Context, courseID string) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, rec := range m.records {
		if m.course[rec.SessionID] == courseID {
			count++
		}
	}
	return count, nil
}

// MockAuditStore is an in-memory store.AuditStore.
type MockAuditStore struct {
	mu      sync.RWMutex
	entries []store.AuditEntry

	AppendError error
	ListError   error
}

func NewMockAuditStore() *MockAuditStore {
	return &MockAuditStore{}
}

func (m *MockAuditStore) Append(ctx context.Context, entry *store.AuditEntry) error {
	if m.AppendError != nil {
		return m.AppendError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *MockAuditStore) ListBySession(ctx context.Context, sessionID string) ([]store.AuditEntry, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.AuditEntry
	for _, e := range m.entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

// All returns every entry appended so far.
func (m *MockAuditStore) All() []store.AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]store.AuditEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// MockDisputeStore is an in-memory store.DisputeStore.
type MockDisputeStore struct {
	mu       sync.RWMutex
	disputes map[string]store.Dispute

	CreateError  error
	GetError     error
	ListError    error
	ResolveError error
}

func NewMockDisputeStore() *MockDisputeStore {
	return &MockDisputeStore{disputes: make(map[string]store.Dispute)}
}

func (m *MockDisputeStore) Create(ctx context.Context, d *store.Dispute) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.disputes {
		if existing.SessionID == d.SessionID && existing.StudentID == d.StudentID &&
			existing.Status == store.DisputePending {
			return store.ErrDisputePending
		}
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = store.DisputePending
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	m.disputes[d.ID] = *d
	return nil
}

func (m *MockDisputeStore) Get(ctx context.Context, id string) (*store.Dispute, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.disputes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &d, nil
}

func (m *MockDisputeStore) ListByStudent(ctx context.Context, studentID string) ([]store.Dispute, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	return m.list(func(d store.Dispute) bool { return d.StudentID == studentID }), nil
}

func (m *MockDisputeStore) ListByCourse(ctx context.Context, courseID, status string) ([]store.Dispute, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	return m.list(func(d store.Dispute) bool {
		return d.CourseID == courseID && (status == "" || d.Status == status)
	}), nil
}

func (m *MockDisputeStore) Resolve(ctx context.Context, id, status, note, resolverID string, at time.Time) error {
	if m.ResolveError != nil {
		return m.ResolveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.disputes[id]
	if !ok || d.Status != store.DisputePending {
		return store.ErrNotFound
	}
	d.Status = status
	d.ResolutionNote = note
	d.ResolverID = resolverID
	d.ResolvedAt = &at
	m.disputes[id] = d
	return nil
}

func (m *MockDisputeStore) list(keep func(store.Dispute) bool) []store.Dispute {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.Dispute
	for _, d := range m.disputes {
		if keep(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// MockEmbeddingStore is an in-memory store.EmbeddingMetaStore. Vectors are
// retained so tests can assert what was replicated.
type MockEmbeddingStore struct {
	mu      sync.RWMutex
	rows    map[[2]string]store.EmbeddingMeta
	vectors map[[2]string][]float32

	UpsertError error
	ListError   error
	DeleteError error
}

func NewMockEmbeddingStore() *MockEmbeddingStore {
	return &MockEmbeddingStore{
		rows:    make(map[[2]string]store.EmbeddingMeta),
		vectors: make(map[[2]string][]float32),
	}
}

func (m *MockEmbeddingStore) Upsert(ctx context.Context, meta *store.EmbeddingMeta, vector []float32) error {
	if m.UpsertError != nil {
		return m.UpsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	meta.Dim = len(vector)
	key := [2]string{meta.StudentID, meta.ViewType}
	m.rows[key] = *meta
	m.vectors[key] = append([]float32(nil), vector...)
	return nil
}

func (m *MockEmbeddingStore) ListByStudent(ctx context.Context, studentID string) ([]store.EmbeddingMeta, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.EmbeddingMeta
	for key, row := range m.rows {
		if key[0] == studentID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ViewType < out[j].ViewType })
	return out, nil
}

func (m *MockEmbeddingStore) DeleteByStudent(ctx context.Context, studentID string) (int, error) {
	if m.DeleteError != nil {
		return 0, m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for key := range m.rows {
		if key[0] == studentID {
			delete(m.rows, key)
			delete(m.vectors, key)
			count++
		}
	}
	return count, nil
}

// Vector returns the stored vector for a (student, view) pair, or nil.
func (m *MockEmbeddingStore) Vector(studentID, viewType string) []float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.vectors[[2]string{studentID, viewType}]
}
