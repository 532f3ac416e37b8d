package mealdb

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"recipebox/internal/recipe"
)

// maxIngredients is the number of numbered ingredient/measure pairs a meal carries.
const maxIngredients = 20

// RawRecipe is a meal as returned by the remote service. The numbered
// strIngredientN / strMeasureN fields land in Ingredients / Measures, nil
// where the field is missing or null.
type RawRecipe struct {
	ID           string
	Name         string
	Category     string
	Area         string
	Thumb        string
	Instructions string
	Ingredients  [maxIngredients]*string
	Measures     [maxIngredients]*string
}

// UnmarshalJSON implements the json.Unmarshaler interface for RawRecipe.
func (r *RawRecipe) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*r = RawRecipe{
		ID:           stringField(fields, "idMeal"),
		Name:         stringField(fields, "strMeal"),
		Category:     stringField(fields, "strCategory"),
		Area:         stringField(fields, "strArea"),
		Thumb:        stringField(fields, "strMealThumb"),
		Instructions: stringField(fields, "strInstructions"),
	}
	for i := 0; i < maxIngredients; i++ {
		n := strconv.Itoa(i + 1)
		r.Ingredients[i] = optionalField(fields, "strIngredient"+n)
		r.Measures[i] = optionalField(fields, "strMeasure"+n)
	}
	return nil
}

// optionalField decodes a string field, tolerating null, missing and
// non-string values (numbers are kept as their literal text).
func optionalField(fields map[string]json.RawMessage, key string) *string {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		if _, numErr := strconv.ParseFloat(string(raw), 64); numErr != nil {
			return nil
		}
		s = string(raw)
	}
	return &s
}

func stringField(fields map[string]json.RawMessage, key string) string {
	if v := optionalField(fields, key); v != nil {
		return *v
	}
	return ""
}

// ParseIngredients extracts the ingredient list from the numbered fields.
// Ingredients are front-packed: scanning stops at the first missing or
// blank name, so later entries are never read.
func ParseIngredients(raw RawRecipe) []recipe.Ingredient {
	out := []recipe.Ingredient{}
	for i := 0; i < maxIngredients; i++ {
		name := raw.Ingredients[i]
		if name == nil || strings.TrimSpace(*name) == "" {
			break
		}
		measure := ""
		if m := raw.Measures[i]; m != nil {
			measure = strings.TrimSpace(*m)
		}
		out = append(out, recipe.Ingredient{
			ID:      "ing-" + strconv.Itoa(i+1),
			Name:    strings.TrimSpace(*name),
			Measure: measure,
		})
	}
	return out
}

// ToRecipe maps a raw meal onto the canonical Recipe with its detail attached.
func ToRecipe(raw RawRecipe) recipe.Recipe {
	r := recipe.Recipe{
		ID:           raw.ID,
		Name:         raw.Name,
		Category:     raw.Category,
		Ingredients:  ParseIngredients(raw),
		Instructions: recipe.String(raw.Instructions),
	}
	if raw.Thumb != "" {
		r.ImageURI = recipe.String(raw.Thumb)
	}
	return r
}

// Summary maps a raw meal onto a Recipe without detail, as search and
// category listings return it.
func Summary(raw RawRecipe) recipe.Recipe {
	r := recipe.Recipe{
		ID:       raw.ID,
		Name:     raw.Name,
		Category: raw.Category,
	}
	if raw.Thumb != "" {
		r.ImageURI = recipe.String(raw.Thumb)
	}
	return r
}
