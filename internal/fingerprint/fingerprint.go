// ABOUTME: Deterministic plan fingerprint for snapshot cache-validity checks.
// ABOUTME: Order-independent over exercises; not a security control.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/harperreed/lift/internal/models"
)

const seed int32 = 5381

// Canonical returns the string the fingerprint is computed over:
// planId|protocolId|muscleGroup|ex1_sets_reps,ex2_sets_reps|lastModified
// with exercises sorted by id and empty fields omitted.
func Canonical(plan *models.WorkoutPlan) string {
	if plan == nil {
		return ""
	}

	exercises := make([]models.PlanExercise, len(plan.Exercises))
	copy(exercises, plan.Exercises)
	sort.SliceStable(exercises, func(i, j int) bool {
		return exercises[i].ID < exercises[j].ID
	})

	tokens := make([]string, 0, len(exercises))
	for _, ex := range exercises {
		tokens = append(tokens, fmt.Sprintf("%s_%d_%d", ex.ID, ex.Sets, ex.Reps))
	}

	fields := []string{
		plan.ID,
		plan.ProtocolID,
		plan.MuscleGroup,
		strings.Join(tokens, ","),
		plan.LastModified,
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, "|")
}

// Fingerprint returns the base-36 rolling hash of the plan's canonical form.
func Fingerprint(plan *models.WorkoutPlan) string {
	return Hash(Canonical(plan))
}

// Hash is the 32-bit rolling hash (h = h*33 + c, seed 5381) over UTF-16
// code units, wrapped to a signed 32-bit value and encoded as |h| in base 36.
func Hash(s string) string {
	h := seed
	for _, unit := range utf16.Encode([]rune(s)) {
		h = h*33 + int32(unit)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v, 36)
}

// Digest is the collision-resistant variant: SHA-256 hex of the canonical form.
func Digest(plan *models.WorkoutPlan) string {
	sum := sha256.Sum256([]byte(Canonical(plan)))
	return hex.EncodeToString(sum[:])
}

// Matches reports whether fp was produced from plan by either Fingerprint or Digest.
func Matches(plan *models.WorkoutPlan, fp string) bool {
	if fp == "" {
		return false
	}
	if len(fp) == sha256.Size*2 {
		return Digest(plan) == fp
	}
	return Fingerprint(plan) == fp
}
