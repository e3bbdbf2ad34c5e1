package apiserver

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/bushta-cyber/fastmed/pkg/database"
	"github.com/bushta-cyber/fastmed/pkg/types"
)

// PostgresStore is the database-backed Store for deployments with a
// persistent portal API
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a Postgres-backed store
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Authenticate verifies a credential pair against the stored bcrypt hash
func (s *PostgresStore) Authenticate(ctx context.Context, email, password string) (*types.Identity, error) {
	query := `
		SELECT id, name, email, role, password_hash
		FROM users
		WHERE LOWER(email) = LOWER($1)`

	var user types.Identity
	var hash []byte
	err := s.db.QueryRowContext(ctx, query, email).Scan(&user.ID, &user.Name, &user.Email, &user.Role, &hash)
	if err == sql.ErrNoRows {
		return nil, types.NewInvalidCredentialsError()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return nil, types.NewInvalidCredentialsError()
	}
	return &user, nil
}

// CreateUser registers a new account; a known email is rejected
func (s *PostgresStore) CreateUser(ctx context.Context, name, email, password string, role types.Role) (*types.Identity, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &types.Identity{
		ID:    uuid.New().String(),
		Name:  name,
		Email: email,
		Role:  role,
	}

	query := `
		INSERT INTO users (id, name, email, role, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = s.db.ExecContext(ctx, query, user.ID, user.Name, user.Email, user.Role, hash, time.Now())
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return nil, types.NewEmailExistsError(email)
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

// GetUser resolves a user id
func (s *PostgresStore) GetUser(ctx context.Context, userID string) (*types.Identity, error) {
	query := `SELECT id, name, email, role FROM users WHERE id = $1`

	var user types.Identity
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&user.ID, &user.Name, &user.Email, &user.Role)
	if err == sql.ErrNoRows {
		return nil, types.NewNotFoundError("user", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// ListAppointments returns the viewer's appointments, scoped by role
func (s *PostgresStore) ListAppointments(ctx context.Context, viewer *types.Identity) ([]*types.Appointment, error) {
	column := "doctor_id"
	if viewer.Role == types.RolePatient {
		column = "patient_id"
	}

	query := fmt.Sprintf(`
		SELECT id, patient_id, doctor_id, date, start_time, end_time, status, type, reason, COALESCE(notes, '')
		FROM appointments
		WHERE %s = $1
		ORDER BY date, start_time`, column)

	rows, err := s.db.QueryContext(ctx, query, viewer.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()

	var result []*types.Appointment
	for rows.Next() {
		var apt types.Appointment
		if err := rows.Scan(&apt.ID, &apt.PatientID, &apt.DoctorID, &apt.Date, &apt.StartTime, &apt.EndTime, &apt.Status, &apt.Type, &apt.Reason, &apt.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		result = append(result, &apt)
	}
	return result, rows.Err()
}

// GetAppointment resolves an appointment id
func (s *PostgresStore) GetAppointment(ctx context.Context, appointmentID string) (*types.Appointment, error) {
	query := `
		SELECT id, patient_id, doctor_id, date, start_time, end_time, status, type, reason, COALESCE(notes, '')
		FROM appointments
		WHERE id = $1`

	var apt types.Appointment
	err := s.db.QueryRowContext(ctx, query, appointmentID).Scan(
		&apt.ID, &apt.PatientID, &apt.DoctorID, &apt.Date, &apt.StartTime, &apt.EndTime, &apt.Status, &apt.Type, &apt.Reason, &apt.Notes)
	if err == sql.ErrNoRows {
		return nil, types.NewNotFoundError("appointment", appointmentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query appointment: %w", err)
	}
	return &apt, nil
}

// UpdateAppointment replaces the stored appointment's mutable fields
func (s *PostgresStore) UpdateAppointment(ctx context.Context, apt *types.Appointment) error {
	query := `
		UPDATE appointments
		SET date = $2, start_time = $3, end_time = $4, status = $5, updated_at = $6
		WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, apt.ID, apt.Date, apt.StartTime, apt.EndTime, apt.Status, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return types.NewNotFoundError("appointment", apt.ID)
	}
	return nil
}

// ListRecords returns the viewer's medical records with their prescriptions
func (s *PostgresStore) ListRecords(ctx context.Context, viewer *types.Identity) ([]*types.MedicalRecord, error) {
	column := "doctor_id"
	if viewer.Role == types.RolePatient {
		column = "patient_id"
	}

	query := fmt.Sprintf(`
		SELECT id, patient_id, doctor_id, date, diagnosis, symptoms, COALESCE(notes, '')
		FROM medical_records
		WHERE %s = $1
		ORDER BY date DESC`, column)

	rows, err := s.db.QueryContext(ctx, query, viewer.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query medical records: %w", err)
	}
	defer rows.Close()

	var result []*types.MedicalRecord
	for rows.Next() {
		var record types.MedicalRecord
		if err := rows.Scan(&record.ID, &record.PatientID, &record.DoctorID, &record.Date, &record.Diagnosis, pq.Array(&record.Symptoms), &record.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan medical record: %w", err)
		}
		result = append(result, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, record := range result {
		prescriptions, err := s.listPrescriptions(ctx, record.ID)
		if err != nil {
			return nil, err
		}
		record.Prescriptions = prescriptions
	}
	return result, nil
}

func (s *PostgresStore) listPrescriptions(ctx context.Context, recordID string) ([]types.Prescription, error) {
	query := `
		SELECT id, medication_name, dosage, frequency, duration, issued_date, is_active
		FROM prescriptions
		WHERE record_id = $1
		ORDER BY issued_date`

	rows, err := s.db.QueryContext(ctx, query, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to query prescriptions: %w", err)
	}
	defer rows.Close()

	var result []types.Prescription
	for rows.Next() {
		var p types.Prescription
		if err := rows.Scan(&p.ID, &p.MedicationName, &p.Dosage, &p.Frequency, &p.Duration, &p.IssuedDate, &p.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan prescription: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// ListConversations returns the conversations the viewer takes part in
func (s *PostgresStore) ListConversations(ctx context.Context, viewer *types.Identity) ([]*types.Conversation, error) {
	query := `
		SELECT id, participants, last_message_id, unread_count
		FROM conversations
		WHERE $1 = ANY(participants)`

	rows, err := s.db.QueryContext(ctx, query, viewer.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var result []*types.Conversation
	var lastIDs []sql.NullString
	for rows.Next() {
		var conv types.Conversation
		var lastID sql.NullString
		if err := rows.Scan(&conv.ID, pq.Array(&conv.Participants), &lastID, &conv.UnreadCount); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		result = append(result, &conv)
		lastIDs = append(lastIDs, lastID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, conv := range result {
		if !lastIDs[i].Valid {
			continue
		}
		msg, err := s.getMessage(ctx, lastIDs[i].String)
		if err != nil {
			return nil, err
		}
		conv.LastMessage = msg
	}
	return result, nil
}

func (s *PostgresStore) getMessage(ctx context.Context, messageID string) (*types.Message, error) {
	query := `
		SELECT id, sender_id, receiver_id, content, timestamp, read
		FROM messages
		WHERE id = $1`

	var msg types.Message
	err := s.db.QueryRowContext(ctx, query, messageID).Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.Timestamp, &msg.Read)
	if err == sql.ErrNoRows {
		return nil, types.NewNotFoundError("message", messageID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query message: %w", err)
	}
	return &msg, nil
}

// ListMessages returns a conversation's messages in send order
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]*types.Message, error) {
	var participants []string
	err := s.db.QueryRowContext(ctx, `SELECT participants FROM conversations WHERE id = $1`, conversationID).Scan(pq.Array(&participants))
	if err == sql.ErrNoRows {
		return nil, types.NewNotFoundError("conversation", conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	if len(participants) != 2 {
		return nil, types.NewMalformedConversationError(conversationID)
	}

	query := `
		SELECT id, sender_id, receiver_id, content, timestamp, read
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY timestamp`

	rows, err := s.db.QueryContext(ctx, query, participants[0], participants[1])
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var result []*types.Message
	for rows.Next() {
		var msg types.Message
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.Timestamp, &msg.Read); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		result = append(result, &msg)
	}
	return result, rows.Err()
}

// InsertMessage appends a message and updates its conversation inside one
// transaction, creating the conversation for a first contact
func (s *PostgresStore) InsertMessage(ctx context.Context, msg *types.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, sender_id, receiver_id, content, timestamp, read)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.SenderID, msg.ReceiverID, msg.Content, msg.Timestamp, msg.Read)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_id = $1, unread_count = unread_count + 1
		WHERE participants @> $2 AND participants <@ $2`,
		msg.ID, pq.Array([]string{msg.SenderID, msg.ReceiverID}))
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO conversations (id, participants, last_message_id, unread_count)
			VALUES ($1, $2, $3, 1)`,
			uuid.New().String(), pq.Array([]string{msg.SenderID, msg.ReceiverID}), msg.ID)
		if err != nil {
			return fmt.Errorf("failed to create conversation: %w", err)
		}
	}

	return tx.Commit()
}
