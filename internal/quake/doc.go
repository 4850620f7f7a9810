// Package quake holds the canonical earthquake model: the Event entity, its
// composite dedup identity, the PAGER alert tiers, and the magnitude threshold
// gates subscribers filter on.
//
// Identity: an event's ID is "<mag>-<code>-<timeMs>" built from the feed's
// exact magnitude text, the source-assigned code and the epoch-millisecond
// timestamp. Two records with the same ID are the same occurrence; the ID never
// changes across polls.
//
// Presentation (local display time, depth fallback, alert icon and PAGER
// description) is derived here too, but never participates in identity.
package quake
