// Package domain models morning fog and "castle in the sky" events for a
// single observation site.
//
// # Events
//
// Fog is the familiar low-visibility condition. The castle is the rarer case
// where a fog layer sits in the valley while the sky above it is mostly clear,
// so a hilltop castle appears to float on cloud. The castle therefore implies
// fog, and the two probabilities are strongly correlated.
//
// # Inputs
//
// A [Reading] is the average of the site's hourly weather between 05:00 and
// 08:00 local time for one calendar day:
//
//	temp      air temperature, °C
//	humidity  relative humidity, % in (0, 100]
//	wind      wind speed at 10 m, m/s
//	cloud     total cloud cover, %
//	rain      precipitation, mm
//
// # Scoring
//
// The rule-based score ([ScoreReading]) is a transparent baseline that needs
// no trained artifacts. Dew point uses the Magnus approximation:
//
//	alpha = ln(h/100) + a*t/(b+t)      a = 17.625, b = 243.04
//	dew   = b*alpha / (a - alpha)
//
// Fog starts at 100 and loses points for dew spread, wind above 1.5 m/s and
// rain. The castle score starts from the fog score and loses points for cloud
// cover outside [40, 90] % and for spreads wider than 2 °C.
//
// # Probabilities
//
// Two opaque binary classifiers ([Classifier]) map the 11-element
// [FeatureVector] to fog and castle probabilities. An optional second-stage
// [Calibrator] fuses them into a single event probability; without one the
// event probability is the product fog*castle. [EventClassifier] turns the
// numbers into a [EventLabel].
//
// # History
//
// Each date has at most one [HistoryRecord]. Pipeline runs own the predicted
// columns and operators own the observed columns; [HistoryStore] upserts touch
// exactly one of those groups so neither writer can clobber the other.
package domain
