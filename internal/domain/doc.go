// Package domain models the comune rotation, the generation history, and
// the enrichment payload returned by the language model.
//
// # Reference Data
//
// The ten Tuscan provinces and their 273 comuni are embedded as comuni.yaml
// and loaded once at init. Each comune carries its province's plate code
// (e.g. "FI" for Firenze). The catalog never changes at runtime.
//
// # Rotation
//
// Provinces rotate with a novelty bias rather than round-robin:
//
//	window     = min(5, provinces-2) newest records
//	excluded   = distinct provinces inside the window
//	candidates = provinces - excluded  (all provinces if that is empty)
//
// The next province is drawn uniformly from the candidates. Within the
// chosen province, comuni are ranked least-recently-seen first (never seen
// before anything seen) and the draw is uniform over the first
// max(1, floor(n/4)) of them.
//
// # Model Output
//
// The model is asked for a bare JSON object but frequently wraps it in a
// markdown fence or surrounds it with prose:
//
//	Ecco i dati richiesti:
//	```json
//	{"meteo": {"temperatura": 21.5, "statoCielo": "sereno"},
//	 "cultura": {"descrizione": "...", "aneddotoApprofondito": "..."}}
//	```
//
// [ParseResponse] takes the first fence (if any), slices from the first "{"
// to the last "}", and decodes that. "cultura" is mandatory; "meteo" is
// best-effort and silently becomes nil when absent or wrong-typed.
//
// # Timestamps
//
// Stores assign the authoritative timestamp. Every timestamp handed to
// callers is rendered in [TimestampLayout] (UTC, millisecond precision),
// the same shape the web client produced with Date.toISOString.
package domain
