// Package sync implements the synchronization engine: the governor, hierarchy
// walker, reconciler and orchestrator that mirror the vendor hierarchy into
// the local store.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/meshforge/cadmirror/internal/models"
	"github.com/meshforge/cadmirror/internal/onshape"
	"github.com/meshforge/cadmirror/pkg/logger"
)

// Requester is the outbound request surface the walker needs. Satisfied by
// *onshape.Client.
type Requester interface {
	Send(ctx context.Context, method, path string, query url.Values) (*onshape.Response, error)
}

// Walker enumerates vendor entities level by level, one parent at a time,
// respecting pagination.
type Walker struct {
	client   Requester
	gov      *Governor
	pageSize int
	logger   *slog.Logger
}

// NewWalker creates a Walker fetching pageSize entities per request.
func NewWalker(client Requester, gov *Governor, pageSize int, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	if pageSize < 1 {
		pageSize = 20
	}
	return &Walker{
		client:   client,
		gov:      gov,
		pageSize: pageSize,
		logger:   logger,
	}
}

// Walk fetches pages of res under parent starting at cursor and yields each
// entity in server-returned order. It returns the cursor position reached:
// on success that is the end of the collection; on a page failure after
// retries it is the last fully-processed position, so a later call can
// resume from it. One parent's failure never affects sibling walks.
func (w *Walker) Walk(ctx context.Context, res models.ResourceType, parent models.EntityKey, cursor Cursor, yield func(models.RemoteEntity) error) (Cursor, error) {
	path, err := collectionPath(res, parent)
	if err != nil {
		return cursor, err
	}
	pag := paginatorFor(res)

	for {
		// Cancellation takes effect between pages; an in-flight fetch
		// completes normally.
		if err := ctx.Err(); err != nil {
			return cursor, err
		}

		var entities []models.RemoteEntity
		fetch := func(ctx context.Context) error {
			resp, err := w.client.Send(ctx, http.MethodGet, path, pag.Query(w.pageSize, cursor))
			if err != nil {
				return err
			}
			decoded, err := decodeEntities(res, parent, resp.Body)
			if err != nil {
				return err
			}
			entities = decoded
			return nil
		}

		if err := w.gov.Do(ctx, fetch); err != nil {
			log := w.logger
			if runID := logger.RunIDFromContext(ctx); runID != "" {
				log = log.With("run_id", runID)
			}
			log.Warn("page fetch failed, stopping walk for parent",
				"resource", res,
				"parent", parent.String(),
				"offset", cursor.Offset,
				"error", err,
			)
			return cursor, err
		}

		if res == models.ResourcePart {
			w.enrichParts(ctx, parent, entities)
		}

		for _, entity := range entities {
			if err := yield(entity); err != nil {
				return cursor, err
			}
		}

		next, more := pag.Next(cursor, len(entities), w.pageSize)
		cursor = next
		if !more {
			return cursor, nil
		}
	}
}

// enrichParts grafts per-part mass properties into the part payloads. The
// vendor serves them from a separate endpoint keyed by partId; parts without
// computable mass properties are mirrored without them.
func (w *Walker) enrichParts(ctx context.Context, parent models.EntityKey, entities []models.RemoteEntity) {
	path := fmt.Sprintf("/partstudios/d/%s/w/%s/e/%s/massproperties",
		parent.DocumentID, parent.WorkspaceID, parent.ElementID)

	for i := range entities {
		query := url.Values{}
		query.Set("partId", entities[i].Key.PartID)

		var body []byte
		fetch := func(ctx context.Context) error {
			resp, err := w.client.Send(ctx, http.MethodGet, path, query)
			if err != nil {
				return err
			}
			body = resp.Body
			return nil
		}
		if err := w.gov.Do(ctx, fetch); err != nil {
			w.logger.Debug("mass properties unavailable",
				"part", entities[i].Key.String(),
				"error", err,
			)
			continue
		}
		entities[i].Payload = graftMassProperties(entities[i].Payload, body)
	}
}

// graftMassProperties sets the massProperties field on a part item so the
// store's typed column extraction sees it alongside the listing fields.
func graftMassProperties(payload json.RawMessage, props []byte) json.RawMessage {
	if len(props) == 0 {
		return payload
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return payload
	}
	fields["massProperties"] = props
	merged, err := json.Marshal(fields)
	if err != nil {
		return payload
	}
	return merged
}
