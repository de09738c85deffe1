package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/saeid-a/CareMarketBack/internal/models"
	"go.uber.org/zap"
)

// Seed is the directory data a fresh local store starts with.
type Seed struct {
	Providers []models.ProviderProfile `json:"providers"`
	Users     []models.UserProfile     `json:"users"`
}

type messageRecord struct {
	Seq     uint64         `json:"seq"`
	Message models.Message `json:"message"`
}

type notificationRecord struct {
	Seq          uint64              `json:"seq"`
	Notification models.Notification `json:"notification"`
}

type snapshot struct {
	Seq           uint64                   `json:"seq"`
	Conversations []models.Conversation    `json:"conversations"`
	Messages      []messageRecord          `json:"messages"`
	Notifications []notificationRecord     `json:"notifications"`
	Appointments  []models.Appointment     `json:"appointments"`
	Providers     []models.ProviderProfile `json:"providers"`
	Users         []models.UserProfile     `json:"users"`
}

// LocalStore keeps every collection in memory behind one mutex and persists
// a JSON snapshot after each mutation. An empty path keeps it memory-only.
type LocalStore struct {
	mu     sync.Mutex
	path   string
	seed   Seed
	logger *zap.Logger

	// committed is the state last written to disk; a failed save rolls
	// the maps back to it.
	committed snapshot

	seq           uint64
	conversations map[string]*models.Conversation
	pairs         map[[2]string]string
	messages      map[string]*messageRecord
	notifications map[string]*notificationRecord
	appointments  map[string]*models.Appointment
	providers     map[string]models.ProviderProfile
	users         map[string]models.UserProfile
}

type LocalOption func(*LocalStore)

func WithSeed(seed Seed) LocalOption {
	return func(s *LocalStore) { s.seed = seed }
}

func WithLogger(logger *zap.Logger) LocalOption {
	return func(s *LocalStore) { s.logger = logger }
}

func NewLocalStore(path string, opts ...LocalOption) *LocalStore {
	s := &LocalStore{
		path:   path,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reset()
	return s
}

var _ Store = (*LocalStore)(nil)

func (s *LocalStore) reset() {
	s.seq = 0
	s.conversations = make(map[string]*models.Conversation)
	s.pairs = make(map[[2]string]string)
	s.messages = make(map[string]*messageRecord)
	s.notifications = make(map[string]*notificationRecord)
	s.appointments = make(map[string]*models.Appointment)
	s.providers = make(map[string]models.ProviderProfile)
	s.users = make(map[string]models.UserProfile)
}

// Init loads the snapshot at the configured path, or applies the seed and
// writes a first snapshot when none exists yet.
func (s *LocalStore) Init(ctx context.Context) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	s.reset()
	if s.path != "" {
		raw, err := os.ReadFile(s.path)
		switch {
		case err == nil:
			var snap snapshot
			if err := json.Unmarshal(raw, &snap); err != nil {
				return fmt.Errorf("decode snapshot %s: %w", s.path, err)
			}
			s.restore(snap)
			s.committed = snap
			s.logger.Info("local store loaded",
				zap.String("path", s.path),
				zap.Int("appointments", len(s.appointments)),
				zap.Int("conversations", len(s.conversations)))
			return nil
		case !errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("read snapshot %s: %w", s.path, err)
		}
	}

	for _, provider := range s.seed.Providers {
		s.providers[provider.ID] = provider
	}
	for _, user := range s.seed.Users {
		s.users[user.ID] = user
	}
	s.logger.Info("local store seeded",
		zap.String("path", s.path),
		zap.Int("providers", len(s.providers)),
		zap.Int("users", len(s.users)))
	return s.save()
}

func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

func (s *LocalStore) lock(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	return s.mu.Unlock, nil
}

func (s *LocalStore) restore(snap snapshot) {
	s.seq = snap.Seq
	for i := range snap.Conversations {
		conv := snap.Conversations[i]
		s.conversations[conv.ID] = &conv
		s.pairs[pairKey(conv.ParticipantA, conv.ParticipantB)] = conv.ID
	}
	for i := range snap.Messages {
		record := snap.Messages[i]
		s.messages[record.Message.ID] = &record
	}
	for i := range snap.Notifications {
		record := snap.Notifications[i]
		s.notifications[record.Notification.ID] = &record
	}
	for i := range snap.Appointments {
		appt := snap.Appointments[i]
		s.appointments[appt.ID] = &appt
	}
	for _, provider := range snap.Providers {
		s.providers[provider.ID] = provider
	}
	for _, user := range snap.Users {
		s.users[user.ID] = user
	}
}

// save must be called with mu held. When the snapshot cannot be written the
// in-memory state is restored to the last committed snapshot, so a failed
// mutation leaves nothing behind.
func (s *LocalStore) save() error {
	if s.path == "" {
		return nil
	}

	snap := s.capture()
	if err := s.write(snap); err != nil {
		s.reset()
		s.restore(s.committed)
		s.logger.Warn("snapshot write failed; mutation rolled back",
			zap.String("path", s.path), zap.Error(err))
		return err
	}
	s.committed = snap
	return nil
}

func (s *LocalStore) capture() snapshot {
	snap := snapshot{Seq: s.seq}
	for _, conv := range s.conversations {
		snap.Conversations = append(snap.Conversations, *conv)
	}
	sort.Slice(snap.Conversations, func(i, j int) bool {
		return snap.Conversations[i].ID < snap.Conversations[j].ID
	})
	for _, record := range s.messages {
		snap.Messages = append(snap.Messages, *record)
	}
	sort.Slice(snap.Messages, func(i, j int) bool { return snap.Messages[i].Seq < snap.Messages[j].Seq })
	for _, record := range s.notifications {
		snap.Notifications = append(snap.Notifications, *record)
	}
	sort.Slice(snap.Notifications, func(i, j int) bool {
		return snap.Notifications[i].Seq < snap.Notifications[j].Seq
	})
	for _, appt := range s.appointments {
		snap.Appointments = append(snap.Appointments, *appt)
	}
	sort.Slice(snap.Appointments, func(i, j int) bool { return snap.Appointments[i].ID < snap.Appointments[j].ID })
	for _, provider := range s.providers {
		snap.Providers = append(snap.Providers, provider)
	}
	sort.Slice(snap.Providers, func(i, j int) bool { return snap.Providers[i].ID < snap.Providers[j].ID })
	for _, user := range s.users {
		snap.Users = append(snap.Users, user)
	}
	sort.Slice(snap.Users, func(i, j int) bool { return snap.Users[i].ID < snap.Users[j].ID })
	return snap
}

func (s *LocalStore) write(snap snapshot) error {
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (s *LocalStore) nextSeq() uint64 {
	s.seq++
	return s.seq
}

func pairKey(a, b string) [2]string {
	low, high := models.ParticipantKey(a, b)
	return [2]string{low, high}
}

// PutProviderProfile upserts a directory record.
func (s *LocalStore) PutProviderProfile(ctx context.Context, profile models.ProviderProfile) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	s.providers[profile.ID] = profile
	return s.save()
}

// PutUserProfile upserts a directory record.
func (s *LocalStore) PutUserProfile(ctx context.Context, profile models.UserProfile) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	s.users[profile.ID] = profile
	return s.save()
}

func (s *LocalStore) CreateOrGetConversation(
	ctx context.Context,
	conv *models.Conversation,
) (*models.Conversation, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	key := pairKey(conv.ParticipantA, conv.ParticipantB)
	if existingID, ok := s.pairs[key]; ok {
		existing := *s.conversations[existingID]
		return &existing, nil
	}

	stored := *conv
	stored.ParticipantA, stored.ParticipantB = key[0], key[1]
	if stored.LastMessageAt.IsZero() {
		stored.LastMessageAt = stored.CreatedAt
	}
	s.conversations[stored.ID] = &stored
	s.pairs[key] = stored.ID
	if err := s.save(); err != nil {
		return nil, err
	}
	result := stored
	return &result, nil
}

func (s *LocalStore) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	result := *conv
	return &result, nil
}

func (s *LocalStore) ListConversationsForParticipant(
	ctx context.Context,
	participantID string,
) ([]models.ConversationSummary, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	summaries := make([]models.ConversationSummary, 0)
	for _, conv := range s.conversations {
		if !conv.HasParticipant(participantID) {
			continue
		}
		summary := models.ConversationSummary{Conversation: *conv}
		for _, record := range s.conversationMessages(conv.ID) {
			msg := record.Message
			summary.LastMessage = &msg
			if msg.ReceiverID == participantID && !msg.IsRead {
				summary.UnreadCount++
			}
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		left, right := summaryActivity(summaries[i]), summaryActivity(summaries[j])
		if !left.Equal(right) {
			return left.After(right)
		}
		return summaries[i].ID > summaries[j].ID
	})
	return summaries, nil
}

func summaryActivity(summary models.ConversationSummary) time.Time {
	if summary.LastMessage != nil {
		return summary.LastMessage.CreatedAt
	}
	return summary.LastMessageAt
}

func (s *LocalStore) DeleteConversation(ctx context.Context, conversationID string) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	delete(s.pairs, pairKey(conv.ParticipantA, conv.ParticipantB))
	delete(s.conversations, conversationID)
	for id, record := range s.messages {
		if record.Message.ConversationID == conversationID {
			delete(s.messages, id)
		}
	}
	return s.save()
}

// conversationMessages returns the records of one conversation ordered by
// CreatedAt, then insertion. Caller holds mu.
func (s *LocalStore) conversationMessages(conversationID string) []*messageRecord {
	records := make([]*messageRecord, 0)
	for _, record := range s.messages {
		if record.Message.ConversationID == conversationID {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		left, right := records[i].Message.CreatedAt, records[j].Message.CreatedAt
		if !left.Equal(right) {
			return left.Before(right)
		}
		return records[i].Seq < records[j].Seq
	})
	return records
}

func (s *LocalStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	conv, ok := s.conversations[msg.ConversationID]
	if !ok {
		return ErrNotFound
	}
	stored := *msg
	if conv.LastMessageAt.After(stored.CreatedAt) {
		stored.CreatedAt = conv.LastMessageAt
	}
	s.messages[stored.ID] = &messageRecord{Seq: s.nextSeq(), Message: stored}
	conv.LastMessageAt = stored.CreatedAt
	if err := s.save(); err != nil {
		return err
	}
	msg.CreatedAt = stored.CreatedAt
	return nil
}

func (s *LocalStore) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	record, ok := s.messages[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	msg := record.Message
	return &msg, nil
}

func (s *LocalStore) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	records := s.conversationMessages(conversationID)
	messages := make([]models.Message, 0, len(records))
	for _, record := range records {
		messages = append(messages, record.Message)
	}
	return messages, nil
}

func (s *LocalStore) MarkConversationRead(ctx context.Context, conversationID string, readerID string) (int, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	changed := 0
	for _, record := range s.messages {
		msg := &record.Message
		if msg.ConversationID == conversationID && msg.ReceiverID == readerID && !msg.IsRead {
			msg.IsRead = true
			changed++
		}
	}
	if changed == 0 {
		return 0, nil
	}
	if err := s.save(); err != nil {
		return 0, err
	}
	return changed, nil
}

func (s *LocalStore) CountUnreadMessages(ctx context.Context, receiverID string) (int, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	count := 0
	for _, record := range s.messages {
		if record.Message.ReceiverID == receiverID && !record.Message.IsRead {
			count++
		}
	}
	return count, nil
}

func (s *LocalStore) DeleteMessage(ctx context.Context, messageID string) (*models.Message, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	record, ok := s.messages[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.messages, messageID)
	deleted := record.Message
	if err := s.save(); err != nil {
		return nil, err
	}
	return &deleted, nil
}

func (s *LocalStore) InsertNotification(ctx context.Context, notification *models.Notification) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	s.notifications[notification.ID] = &notificationRecord{
		Seq:          s.nextSeq(),
		Notification: *notification,
	}
	return s.save()
}

func (s *LocalStore) GetNotification(ctx context.Context, notificationID string) (*models.Notification, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	record, ok := s.notifications[notificationID]
	if !ok {
		return nil, ErrNotFound
	}
	notification := record.Notification
	return &notification, nil
}

func (s *LocalStore) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	records := make([]*notificationRecord, 0)
	for _, record := range s.notifications {
		if record.Notification.UserID == userID {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		left, right := records[i].Notification.CreatedAt, records[j].Notification.CreatedAt
		if !left.Equal(right) {
			return left.After(right)
		}
		return records[i].Seq > records[j].Seq
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	notifications := make([]models.Notification, 0, len(records))
	for _, record := range records {
		notifications = append(notifications, record.Notification)
	}
	return notifications, nil
}

func (s *LocalStore) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	count := 0
	for _, record := range s.notifications {
		if record.Notification.UserID == userID && !record.Notification.IsRead {
			count++
		}
	}
	return count, nil
}

func (s *LocalStore) MarkNotificationRead(
	ctx context.Context,
	notificationID string,
) (*models.Notification, bool, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	record, ok := s.notifications[notificationID]
	if !ok {
		return nil, false, ErrNotFound
	}
	if record.Notification.IsRead {
		result := record.Notification
		return &result, false, nil
	}
	record.Notification.IsRead = true
	result := record.Notification
	if err := s.save(); err != nil {
		return nil, false, err
	}
	return &result, true, nil
}

func (s *LocalStore) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	changed := 0
	for _, record := range s.notifications {
		if record.Notification.UserID == userID && !record.Notification.IsRead {
			record.Notification.IsRead = true
			changed++
		}
	}
	if changed == 0 {
		return 0, nil
	}
	if err := s.save(); err != nil {
		return 0, err
	}
	return changed, nil
}

func (s *LocalStore) DeleteNotification(ctx context.Context, notificationID string) (*models.Notification, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	record, ok := s.notifications[notificationID]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.notifications, notificationID)
	deleted := record.Notification
	if err := s.save(); err != nil {
		return nil, err
	}
	return &deleted, nil
}

func (s *LocalStore) CreateAppointment(ctx context.Context, appt *models.Appointment) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	start, end := appt.DateTime, appt.End()
	if conflict := s.findConflict(appt.ProviderID, start, end); conflict != nil {
		return &CollisionError{
			ProviderID:     appt.ProviderID,
			RequestedStart: start,
			RequestedEnd:   end,
			ConflictingID:  conflict.ID,
			ConflictStart:  conflict.DateTime,
			ConflictEnd:    conflict.End(),
		}
	}

	stored := *appt
	s.appointments[stored.ID] = &stored
	return s.save()
}

func (s *LocalStore) FindConflict(
	ctx context.Context,
	providerID string,
	start, end time.Time,
) (*models.Appointment, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	conflict := s.findConflict(providerID, start, end)
	if conflict == nil {
		return nil, nil
	}
	result := *conflict
	return &result, nil
}

// findConflict returns the earliest active overlapping appointment. Caller holds mu.
func (s *LocalStore) findConflict(providerID string, start, end time.Time) *models.Appointment {
	var earliest *models.Appointment
	for _, existing := range s.appointments {
		if existing.ProviderID != providerID || !existing.Status.Active() {
			continue
		}
		if !existing.Overlaps(start, end) {
			continue
		}
		if earliest == nil || existing.DateTime.Before(earliest.DateTime) {
			earliest = existing
		}
	}
	return earliest
}

func (s *LocalStore) GetAppointment(ctx context.Context, appointmentID string) (*models.Appointment, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	appt, ok := s.appointments[appointmentID]
	if !ok {
		return nil, ErrNotFound
	}
	result := *appt
	return &result, nil
}

func (s *LocalStore) ListAppointmentsForProviders(
	ctx context.Context,
	providerIDs []string,
) ([]models.Appointment, error) {
	wanted := make(map[string]struct{}, len(providerIDs))
	for _, id := range providerIDs {
		wanted[id] = struct{}{}
	}
	return s.filterAppointments(ctx, func(appt *models.Appointment) bool {
		_, ok := wanted[appt.ProviderID]
		return ok
	})
}

func (s *LocalStore) ListAppointmentsForClient(ctx context.Context, clientID string) ([]models.Appointment, error) {
	return s.filterAppointments(ctx, func(appt *models.Appointment) bool {
		return appt.ClientID == clientID
	})
}

func (s *LocalStore) ListAllAppointments(ctx context.Context) ([]models.Appointment, error) {
	return s.filterAppointments(ctx, func(*models.Appointment) bool { return true })
}

func (s *LocalStore) filterAppointments(
	ctx context.Context,
	keep func(*models.Appointment) bool,
) ([]models.Appointment, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	appointments := make([]models.Appointment, 0)
	for _, appt := range s.appointments {
		if keep(appt) {
			appointments = append(appointments, *appt)
		}
	}
	SortAppointmentsNewestFirst(appointments)
	return appointments, nil
}

// SortAppointmentsNewestFirst orders by DateTime descending, then CreatedAt
// descending, then ID.
func SortAppointmentsNewestFirst(appointments []models.Appointment) {
	sort.SliceStable(appointments, func(i, j int) bool {
		left, right := appointments[i], appointments[j]
		if !left.DateTime.Equal(right.DateTime) {
			return left.DateTime.After(right.DateTime)
		}
		if !left.CreatedAt.Equal(right.CreatedAt) {
			return left.CreatedAt.After(right.CreatedAt)
		}
		return left.ID < right.ID
	})
}

func (s *LocalStore) UpdateAppointmentStatusIfCurrent(
	ctx context.Context,
	appointmentID string,
	current models.AppointmentStatus,
	next models.AppointmentStatus,
	updatedAt time.Time,
) (*models.Appointment, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	appt, ok := s.appointments[appointmentID]
	if !ok {
		return nil, ErrNotFound
	}
	if appt.Status != current {
		return nil, ErrStaleStatus
	}
	appt.Status = next
	appt.UpdatedAt = updatedAt
	result := *appt
	if err := s.save(); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *LocalStore) ListProviderIDsForUser(ctx context.Context, userID string) ([]string, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	ids := make([]string, 0)
	for _, provider := range s.providers {
		if provider.UserID == userID {
			ids = append(ids, provider.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *LocalStore) GetProviderProfile(ctx context.Context, providerID string) (*models.ProviderProfile, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	provider, ok := s.providers[providerID]
	if !ok {
		return nil, ErrNotFound
	}
	return &provider, nil
}

func (s *LocalStore) GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}
