package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/garyjia/invoice-vision/internal/application/port"
	"github.com/garyjia/invoice-vision/internal/application/session"
	"github.com/garyjia/invoice-vision/internal/domain/entity"
	"github.com/garyjia/invoice-vision/internal/invoice"
	"github.com/google/uuid"
)

// ItemOutcome is what happened to one image of a batch
type ItemOutcome string

const (
	OutcomeStored    ItemOutcome = "stored"
	OutcomeHeld      ItemOutcome = "held"
	OutcomeDuplicate ItemOutcome = "duplicate"
	OutcomeFailed    ItemOutcome = "failed"
)

// BatchItem is one uploaded image
type BatchItem struct {
	FileName string
	Image    []byte
}

// BatchRequest describes one ingestion run
type BatchRequest struct {
	Owner  string
	Items  []BatchItem
	Model  string
	APIKey string
	// Session receives degraded records and supplies the debug toggle.
	// A throwaway session is used when nil.
	Session *session.Session
	// Existing is the history checked for duplicates. When nil the
	// repository is queried per item.
	Existing invoice.HistoryView
	// Progress, when set, is called after each item completes
	Progress func(ItemResult)
}

// ItemResult is the log entry of one image
type ItemResult struct {
	Index       int                   `json:"index"`
	FileName    string                `json:"file_name"`
	Outcome     ItemOutcome           `json:"outcome"`
	Record      *entity.InvoiceRecord `json:"record,omitempty"`
	DuplicateOf int64                 `json:"duplicate_of,omitempty"`
	Degraded    bool                  `json:"degraded,omitempty"`
	Message     string                `json:"message,omitempty"`
	Trail       []string              `json:"trail,omitempty"`
}

// BatchResult summarizes a batch. Held records count as successes and set Degraded.
type BatchResult struct {
	BatchID   string       `json:"batch_id"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Degraded  bool         `json:"degraded"`
	Items     []ItemResult `json:"items"`
	// Errors is the bounded list of messages shown to the user
	Errors []string `json:"errors,omitempty"`
}

// IngestConfig holds ingestion settings
type IngestConfig struct {
	// APIKey is the configured vision credential used when a request carries none
	APIKey            string
	MaxReportedErrors int
}

// IngestService runs images through recognition, normalization, duplicate
// detection and persistence, one image at a time.
type IngestService struct {
	recognizer port.VisionRecognizer
	repo       port.InvoiceRepository
	normalizer *invoice.Normalizer
	cfg        IngestConfig
	logger     Logger
}

// NewIngestService creates a new IngestService
func NewIngestService(
	recognizer port.VisionRecognizer,
	repo port.InvoiceRepository,
	normalizer *invoice.Normalizer,
	cfg IngestConfig,
	logger Logger,
) *IngestService {
	if cfg.MaxReportedErrors <= 0 {
		cfg.MaxReportedErrors = 5
	}
	return &IngestService{
		recognizer: recognizer,
		repo:       repo,
		normalizer: normalizer,
		cfg:        cfg,
		logger:     logger,
	}
}

// IngestBatch processes req.Items in order. Per-item failures are recorded and
// the batch continues. A missing or rejected credential, or a done context,
// stops the batch and is returned together with the partial result.
func (s *IngestService) IngestBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if strings.TrimSpace(req.Owner) == "" {
		return nil, fmt.Errorf("ingest batch: owner identity is required")
	}
	if strings.TrimSpace(req.APIKey) == "" && strings.TrimSpace(s.cfg.APIKey) == "" {
		return nil, entity.ErrMissingAPIKey
	}

	sess := req.Session
	if sess == nil {
		sess = session.New(req.Owner)
	}
	existing := req.Existing
	if existing == nil {
		existing = &repositoryView{ctx: ctx, repo: s.repo, logger: s.logger}
	}

	result := &BatchResult{BatchID: uuid.NewString()}
	var ingested invoice.RecordList

	s.logger.Info("Starting ingestion batch",
		"batch_id", result.BatchID,
		"owner", req.Owner,
		"items", len(req.Items))

	for i, item := range req.Items {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("Ingestion batch cancelled",
				"batch_id", result.BatchID,
				"processed", i,
				"error", err)
			return result, err
		}

		view := invoice.MultiView{existing, invoice.RecordList(sess.Held()), ingested}
		res, fatal := s.ingestItem(ctx, req, sess, view, i, item)

		result.Items = append(result.Items, res)
		switch res.Outcome {
		case OutcomeStored:
			result.Succeeded++
		case OutcomeHeld:
			result.Succeeded++
			result.Degraded = true
		default:
			result.Failed++
		}
		if res.Outcome == OutcomeStored && res.Record != nil {
			ingested = append(ingested, *res.Record)
		}
		if res.Message != "" {
			result.Errors = appendBounded(result.Errors, res.Message, s.cfg.MaxReportedErrors)
		}

		if req.Progress != nil {
			req.Progress(res)
		}
		if fatal != nil {
			s.logger.Error("Ingestion batch aborted",
				"batch_id", result.BatchID,
				"index", i,
				"error", fatal)
			return result, fatal
		}
	}

	s.logger.Info("Ingestion batch completed",
		"batch_id", result.BatchID,
		"owner", req.Owner,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"degraded", result.Degraded)

	return result, nil
}

// ingestItem handles one image. The returned error is non-nil only when the
// whole batch must stop.
func (s *IngestService) ingestItem(
	ctx context.Context,
	req BatchRequest,
	sess *session.Session,
	view invoice.HistoryView,
	index int,
	item BatchItem,
) (ItemResult, error) {
	res := ItemResult{Index: index, FileName: item.FileName}
	debug := sess.DebugEnabled()

	recognition, err := s.recognizer.Recognize(ctx, port.VisionRequest{
		Image:    item.Image,
		FileName: item.FileName,
		Model:    req.Model,
		APIKey:   req.APIKey,
	})
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Message = fmt.Sprintf("%s: recognition failed: %s", displayName(item.FileName), userFacing(err))
		if debug {
			res.Trail = trailOf(err)
		}
		s.logger.Warn("Recognition failed",
			"owner", req.Owner,
			"file_name", item.FileName,
			"index", index,
			"error", err)

		if errors.Is(err, entity.ErrUnauthorized) || errors.Is(err, entity.ErrMissingAPIKey) {
			return res, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		return res, nil
	}
	if debug {
		res.Trail = recognition.Trail
	}

	raw := recognition.Fields
	if raw == nil {
		raw = entity.RawFields{}
	}
	raw[entity.FieldSourceFileName] = item.FileName

	rec := s.normalizer.Normalize(raw)
	rec.OwnerIdentity = req.Owner

	if dup, id := invoice.IsDuplicate(rec.InvoiceNumber, rec.Date, req.Owner, view); dup {
		res.Outcome = OutcomeDuplicate
		res.DuplicateOf = id
		res.Record = &rec
		res.Message = fmt.Sprintf("%s: duplicate of record %d (invoice %s on %s), skipped",
			displayName(item.FileName), id, rec.InvoiceNumber, rec.Date)
		s.logger.Warn("Duplicate invoice skipped",
			"owner", req.Owner,
			"file_name", item.FileName,
			"invoice_number", rec.InvoiceNumber,
			"date", rec.Date,
			"duplicate_of", id)
		return res, nil
	}

	if _, err := s.repo.Insert(ctx, req.Owner, &rec); err != nil {
		rec.ID = sess.Hold(rec)
		res.Outcome = OutcomeHeld
		res.Degraded = true
		res.Record = &rec
		res.Message = fmt.Sprintf("%s: could not be saved, kept in memory only and will be lost on restart",
			displayName(item.FileName))
		s.logger.Error("Persistence failed, record held in session",
			"owner", req.Owner,
			"file_name", item.FileName,
			"provisional_id", rec.ID,
			"error", err)
		return res, nil
	}

	res.Outcome = OutcomeStored
	res.Record = &rec
	s.logger.Info("Invoice stored",
		"owner", req.Owner,
		"file_name", item.FileName,
		"id", rec.ID,
		"status", string(rec.CompletenessStatus))
	return res, nil
}

// repositoryView adapts the repository to invoice.HistoryView
type repositoryView struct {
	ctx    context.Context
	repo   port.InvoiceRepository
	logger Logger
}

func (v *repositoryView) FindDuplicate(owner, invoiceNumber, date string) (int64, bool) {
	records, err := v.repo.Find(v.ctx, owner, invoiceNumber, date)
	if err != nil {
		v.logger.Warn("Duplicate lookup failed", "owner", owner, "invoice_number", invoiceNumber, "error", err)
		return 0, false
	}
	if len(records) == 0 {
		return 0, false
	}
	return records[0].ID, true
}

func appendBounded(msgs []string, msg string, limit int) []string {
	switch {
	case len(msgs) < limit:
		return append(msgs, msg)
	case len(msgs) == limit:
		return append(msgs, "further errors omitted")
	default:
		return msgs
	}
}

func displayName(name string) string {
	if strings.TrimSpace(name) == "" {
		return entity.SentinelFileName
	}
	return name
}

func userFacing(err error) string {
	switch {
	case errors.Is(err, entity.ErrUnauthorized):
		return "the vision API rejected the API key"
	case errors.Is(err, entity.ErrMissingAPIKey):
		return "no vision API key is configured"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	var trailed interface{ Trail() []string }
	if errors.As(err, &trailed) {
		return fmt.Sprintf("no endpoint returned a readable result after %d attempt(s)", len(trailed.Trail()))
	}
	return err.Error()
}

func trailOf(err error) []string {
	var trailed interface{ Trail() []string }
	if errors.As(err, &trailed) {
		return trailed.Trail()
	}
	return []string{err.Error()}
}
