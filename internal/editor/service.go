package editor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/JonMunkholm/csvedit/internal/csvio"
	"github.com/JonMunkholm/csvedit/internal/logging"
	"github.com/JonMunkholm/csvedit/internal/session"
	"github.com/JonMunkholm/csvedit/internal/table"
)

// DefaultMaxFileSize caps uploads when Options leaves it unset (10MB).
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// Options tunes a Service.
type Options struct {
	MaxFileSize         int64         // Largest accepted file in bytes
	MaxConcurrentIntake int           // Parallel decodes across all sessions
	IntakeWait          time.Duration // How long a load waits for a decode slot
	SessionIdleTimeout  time.Duration // Idle time after which a session is dropped
}

// Service runs editor operations against per-browser sessions.
type Service struct {
	sessions    *session.Store
	limiter     *IntakeLimiter
	maxFileSize int64
}

// NewService creates a Service with its own session store.
func NewService(opts Options) *Service {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	return &Service{
		sessions:    session.NewStore(opts.SessionIdleTimeout),
		limiter:     NewIntakeLimiter(opts.MaxConcurrentIntake, opts.IntakeWait),
		maxFileSize: opts.MaxFileSize,
	}
}

// Sessions exposes the session store, for the sweeper and for tests.
func (s *Service) Sessions() *session.Store {
	return s.sessions
}

// MaxFileSize returns the upload byte cap.
func (s *Service) MaxFileSize() int64 {
	return s.maxFileSize
}

// Session returns the session for id, creating one when id is empty,
// unknown or expired.
func (s *Service) Session(id string) (sess *session.Session, created bool) {
	return s.sessions.GetOrCreate(id)
}

// Current returns the session's present state.
func (s *Service) Current(sess *session.Session) session.View {
	return sess.View()
}

// LoadFile decodes one file and replaces the session's table with it.
//
// name is the client's display name for the file. On any failure the
// session keeps the table it had before and the returned view shows it.
func (s *Service) LoadFile(ctx context.Context, sess *session.Session, name string, r io.Reader) (session.View, error) {
	logger := logging.WithFields(ctx, "file", name)

	if r == nil {
		return sess.View(), ErrNoFile
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		logger.Warn("intake slot unavailable", "error", err)
		return sess.View(), fmt.Errorf("load %s: %w", name, err)
	}
	defer s.limiter.Release()

	start := time.Now()
	data, err := io.ReadAll(io.LimitReader(r, s.maxFileSize+1))
	if err != nil {
		return sess.View(), fmt.Errorf("load %s: read: %w", name, err)
	}
	if int64(len(data)) > s.maxFileSize {
		return sess.View(), fmt.Errorf("load %s: %w (limit %d bytes)", name, ErrFileTooLarge, s.maxFileSize)
	}
	if err := ctx.Err(); err != nil {
		return sess.View(), fmt.Errorf("load %s: %w", name, err)
	}

	decoded, err := csvio.DecodeBytes(data)
	if err != nil {
		logger.Info("decode failed, keeping previous table", "error", err)
		return sess.View(), fmt.Errorf("load %s: %w", name, err)
	}

	view := sess.Replace(csvio.SourceName(name), decoded.Headers, decoded.Rows)
	logger.Info("file loaded",
		"bytes", len(data),
		"columns", len(decoded.Headers),
		"rows", len(decoded.Rows),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return view, nil
}

// SetCell replaces one field of the loaded table.
func (s *Service) SetCell(ctx context.Context, sess *session.Session, row, col int, value string) (session.View, error) {
	view, err := sess.Apply(func(m *table.Model) error {
		return m.SetCell(row, col, value)
	})
	if err != nil {
		logging.FromContext(ctx).Warn("set cell rejected", "row", row, "col", col, "error", err)
		return view, err
	}
	logging.FromContext(ctx).Debug("cell updated", "row", row, "col", col)
	return view, nil
}

// AddRow appends an empty row as wide as the headers.
func (s *Service) AddRow(ctx context.Context, sess *session.Session) session.View {
	view, _ := sess.Apply(func(m *table.Model) error {
		m.AddRow()
		return nil
	})
	logging.FromContext(ctx).Debug("row added", "rows", len(view.Table.Rows))
	return view
}

// DeleteRow removes one row of the loaded table.
func (s *Service) DeleteRow(ctx context.Context, sess *session.Session, row int) (session.View, error) {
	view, err := sess.Apply(func(m *table.Model) error {
		return m.DeleteRow(row)
	})
	if err != nil {
		logging.FromContext(ctx).Warn("delete row rejected", "row", row, "error", err)
		return view, err
	}
	logging.FromContext(ctx).Debug("row deleted", "row", row, "rows", len(view.Table.Rows))
	return view, nil
}

// ExportFile is an encoded table ready for download.
type ExportFile struct {
	Filename string
	Content  []byte
	Rows     int
}

// Export encodes the session's table with its header row first.
func (s *Service) Export(ctx context.Context, sess *session.Session) (*ExportFile, error) {
	view := sess.View()

	content, err := csvio.EncodeBytes(view.Table.Headers, view.Table.Rows)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	file := &ExportFile{
		Filename: csvio.ExportFilename(view.Source),
		Content:  content,
		Rows:     len(view.Table.Rows),
	}
	logging.FromContext(ctx).Info("table exported", "file", file.Filename, "rows", file.Rows)
	return file, nil
}

// IntakeStatus reports decode slot usage.
func (s *Service) IntakeStatus() IntakeStatus {
	return s.limiter.Status()
}

// WaitForIntake blocks until in-flight loads finish or ctx ends.
func (s *Service) WaitForIntake(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// IsEditError reports whether err came from addressing a missing row or column.
func IsEditError(err error) bool {
	return errors.Is(err, table.ErrRowOutOfRange) ||
		errors.Is(err, table.ErrColumnOutOfRange) ||
		errors.Is(err, ErrInvalidPosition)
}
