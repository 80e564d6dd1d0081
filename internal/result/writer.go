package result

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/labelsweep/internal/common"
)

// Writer persists a ResultSet as two artifacts: a nested JSON detail document
// for audit (raw tracking responses included) and a flat CSV summary for the
// downstream void/cancel consumer. Names are deterministic given the run
// label and timestamp, with a short unique suffix so two saves in the same
// second never collide. Writes go to a temp file first and become visible
// only through rename, so a reader can never observe a half-written artifact.
type Writer struct {
	Dir string

	// Now is substituted in tests.
	Now func() time.Time
}

// Save writes the detail and summary artifacts and returns their paths. Any
// write failure is persistence_failed and fatal to the run.
func (w Writer) Save(rs *ResultSet, runLabel string) (string, string, error) {
	if rs == nil {
		return "", "", common.NewAppError(common.CodePersistenceFailed, "nil result set", nil)
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", "", common.NewAppError(common.CodePersistenceFailed, "create output dir", err)
	}

	ts := now().UTC()
	base := fmt.Sprintf("%s_%s_%s", slugify(runLabel), ts.Format("20060102T150405Z"), uuid.NewString()[:8])
	detailPath := filepath.Join(w.Dir, base+"_detail.json")
	summaryPath := filepath.Join(w.Dir, base+"_summary.csv")

	detail, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return "", "", common.NewAppError(common.CodePersistenceFailed, "marshal detail", err)
	}
	if err := atomicWrite(detailPath, detail); err != nil {
		return "", "", err
	}

	summary, err := summaryCSV(rs, ts)
	if err != nil {
		return "", "", err
	}
	if err := atomicWrite(summaryPath, summary); err != nil {
		return "", "", err
	}
	return detailPath, summaryPath, nil
}

// Load reads a detail artifact back. Used for audit tooling and round-trip
// verification.
func Load(path string) (*ResultSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, common.NewAppError(common.CodePersistenceFailed, "read detail", err)
	}
	var rs ResultSet
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, common.NewAppError(common.CodePersistenceFailed, "decode detail", err)
	}
	return &rs, nil
}

func summaryCSV(rs *ResultSet, ts time.Time) ([]byte, error) {
	var sb strings.Builder
	cw := csv.NewWriter(&sb)
	if err := cw.Write([]string{"tracking_number", "status_description", "status_code", "status_type", "date_processed"}); err != nil {
		return nil, common.NewAppError(common.CodePersistenceFailed, "write summary header", err)
	}
	processed := ts.Format(time.RFC3339)
	for _, o := range rs.LabelOnly {
		var desc, code, typ string
		if o.Activity != nil && o.Activity.Status != nil {
			desc = o.Activity.Status.Description
			code = o.Activity.Status.Code
			typ = o.Activity.Status.Type
		}
		if err := cw.Write([]string{o.TrackingNumber, desc, code, typ, processed}); err != nil {
			return nil, common.NewAppError(common.CodePersistenceFailed, "write summary row", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, common.NewAppError(common.CodePersistenceFailed, "flush summary", err)
	}
	return []byte(sb.String()), nil
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return common.NewAppError(common.CodePersistenceFailed, "write "+filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return common.NewAppError(common.CodePersistenceFailed, "publish "+filepath.Base(path), err)
	}
	return nil
}

func slugify(label string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(label)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == '-' || r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	if sb.Len() == 0 {
		return "run"
	}
	return sb.String()
}
