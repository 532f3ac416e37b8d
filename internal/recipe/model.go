package recipe

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when a recipe is neither stored locally nor known remotely.
var ErrNotFound = errors.New("recipe not found")

// CustomIDPrefix marks recipes authored inside the app.
const CustomIDPrefix = "custom-"

// Recipe is a named dish record. Nil Ingredients or Instructions mean the
// detail has not been resolved yet.
type Recipe struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Category     string       `json:"category"`
	ImageURI     *string      `json:"imageUri"`
	Ingredients  []Ingredient `json:"ingredients"`
	Instructions *string      `json:"instructions,omitempty"`
}

// Ingredient is one line of a recipe. ID is only unique within its recipe.
type Ingredient struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Measure string `json:"measure"`
}

// Category is a label returned by the remote service.
type Category struct {
	Name string `json:"name"`
}

// UnmarshalJSON implements the json.Unmarshaler interface for Recipe.
// A stored "imageUri" of "" is treated as absent.
func (r *Recipe) UnmarshalJSON(data []byte) error {
	type Alias Recipe // Create an alias to avoid infinite recursion
	aux := &struct {
		*Alias
	}{
		Alias: (*Alias)(r),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if r.ImageURI != nil && strings.TrimSpace(*r.ImageURI) == "" {
		r.ImageURI = nil
	}

	return nil
}

// Clone returns a deep copy so callers can't mutate store-owned records.
func (r Recipe) Clone() Recipe {
	out := r
	if r.Ingredients != nil {
		out.Ingredients = make([]Ingredient, len(r.Ingredients))
		copy(out.Ingredients, r.Ingredients)
	}
	if r.ImageURI != nil {
		v := *r.ImageURI
		out.ImageURI = &v
	}
	if r.Instructions != nil {
		v := *r.Instructions
		out.Instructions = &v
	}
	return out
}

// Filled returns a copy with the optional fields defaulted, so the caller
// always receives a fully-shaped record.
func (r Recipe) Filled() Recipe {
	out := r.Clone()
	if out.Ingredients == nil {
		out.Ingredients = []Ingredient{}
	}
	if out.Instructions == nil {
		out.Instructions = String("")
	}
	return out
}

// IsCustom reports whether the recipe was authored locally.
func (r Recipe) IsCustom() bool {
	return strings.HasPrefix(r.ID, CustomIDPrefix)
}

// InstructionSteps splits the newline-delimited instructions into non-blank steps.
func (r Recipe) InstructionSteps() []string {
	if r.Instructions == nil {
		return nil
	}
	var steps []string
	for _, line := range strings.Split(*r.Instructions, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			steps = append(steps, line)
		}
	}
	return steps
}

// String returns a pointer to s.
func String(s string) *string {
	return &s
}

var (
	idMu   sync.Mutex
	lastID int64
)

// NewCustomID returns a fresh "custom-<millis>" id. Ids are strictly
// increasing within the process, even for calls in the same millisecond.
func NewCustomID() string {
	idMu.Lock()
	defer idMu.Unlock()

	now := time.Now().UnixMilli()
	if now <= lastID {
		now = lastID + 1
	}
	lastID = now
	return CustomIDPrefix + strconv.FormatInt(now, 10)
}
