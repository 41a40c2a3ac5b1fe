package sync

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/meshforge/cadmirror/internal/models"
	"github.com/meshforge/cadmirror/internal/store/memory"
)

func genEntityID() gopter.Gen {
	return gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 })
}

func TestReconcileIdempotence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("repeated reconciliation writes exactly once", prop.ForAll(
		func(id, revision string, repeats int) bool {
			st := memory.NewStore()
			r := NewReconciler(st.Mirror(), nil)
			ctx := context.Background()

			entity := models.RemoteEntity{
				Key:      models.EntityKey{Type: models.ResourceDocument, DocumentID: id},
				Name:     "doc",
				Revision: revision,
				Payload:  []byte(`{}`),
			}

			created, unchanged := 0, 0
			for i := 0; i < repeats; i++ {
				switch r.Reconcile(ctx, entity, false).Action {
				case models.ActionCreated:
					created++
				case models.ActionUnchanged:
					unchanged++
				default:
					return false
				}
			}

			counts, err := st.Mirror().CountByType(ctx)
			if err != nil {
				return false
			}
			return created == 1 && unchanged == repeats-1 && counts[models.ResourceDocument] == 1
		},
		genEntityID(),
		genEntityID(),
		gen.IntRange(1, 10),
	))

	properties.Property("revision changes always update, never duplicate", prop.ForAll(
		func(id string, revisions []string) bool {
			st := memory.NewStore()
			r := NewReconciler(st.Mirror(), nil)
			ctx := context.Background()

			for _, rev := range revisions {
				entity := models.RemoteEntity{
					Key:      models.EntityKey{Type: models.ResourceDocument, DocumentID: id},
					Revision: rev,
					Payload:  []byte(`{}`),
				}
				if r.Reconcile(ctx, entity, false).Action == models.ActionError {
					return false
				}
			}

			counts, err := st.Mirror().CountByType(ctx)
			if err != nil {
				return false
			}
			rec, err := st.Mirror().Get(ctx, models.EntityKey{Type: models.ResourceDocument, DocumentID: id})
			if err != nil {
				return false
			}
			return counts[models.ResourceDocument] == 1 && rec.Revision == revisions[len(revisions)-1]
		},
		genEntityID(),
		gen.SliceOfN(5, genEntityID()),
	))

	properties.TestingRun(t)
}
