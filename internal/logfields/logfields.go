package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyStage      = "stage"
	KeyDurationMS = "duration_ms"
	KeyPath       = "path"
	KeyALCN       = "alcn"
	KeyDestPath   = "dest_path"
	KeyHandler    = "handler"
	KeyProcessor  = "processor"
	KeyItemKind   = "item_kind"
	KeyItemID     = "item_id"
	KeyLang       = "lang"
	KeyCount      = "count"
	KeyBacking    = "backing"
	KeyTier       = "tier"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr        { return slog.String(KeyRunID, id) }
func Stage(name string) slog.Attr      { return slog.String(KeyStage, name) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func ALCN(alcn string) slog.Attr       { return slog.String(KeyALCN, alcn) }
func DestPath(p string) slog.Attr      { return slog.String(KeyDestPath, p) }
func Handler(name string) slog.Attr    { return slog.String(KeyHandler, name) }
func Processor(name string) slog.Attr  { return slog.String(KeyProcessor, name) }
func ItemKind(kind string) slog.Attr   { return slog.String(KeyItemKind, kind) }
func ItemID(id string) slog.Attr       { return slog.String(KeyItemID, id) }
func Lang(lang string) slog.Attr       { return slog.String(KeyLang, lang) }
func Count(n int) slog.Attr            { return slog.Int(KeyCount, n) }
func Backing(source string) slog.Attr  { return slog.String(KeyBacking, source) }
func Tier(tier string) slog.Attr       { return slog.String(KeyTier, tier) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
