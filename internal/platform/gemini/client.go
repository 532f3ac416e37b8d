package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"recipebox/internal/recipe"
)

// ErrNotFoodImage is returned when the image does not contain food.
var ErrNotFoodImage = fmt.Errorf("image does not contain food")

// Client drafts custom recipes from photos with the Gemini API.
type Client struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewClient creates a new Gemini client.
func NewClient(ctx context.Context, apiKey, modelName string) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &Client{client: client, model: client.GenerativeModel(modelName)}, nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	return c.client.Close()
}

// draft is the JSON shape the model is asked to produce.
type draft struct {
	Name         string            `json:"name"`
	Category     string            `json:"category"`
	Ingredients  []draftIngredient `json:"ingredients"`
	Instructions []string          `json:"instructions"`
}

type draftIngredient struct {
	Name    string `json:"name"`
	Measure string `json:"measure"`
}

// DraftRecipe asks the model for a recipe matching the dish in the photo.
// format is the image subtype ("png", "jpeg"). The returned recipe has no id;
// the caller assigns one before storing it.
func (c *Client) DraftRecipe(ctx context.Context, imageData []byte, format string) (*recipe.Recipe, error) {
	isFood, err := c.isFoodImage(ctx, imageData, format)
	if err != nil {
		return nil, fmt.Errorf("failed to check if image is food: %w", err)
	}
	if !isFood {
		return nil, ErrNotFoodImage
	}

	promptText := "I need a recipe for the food item in this image. Please return a single, clean JSON object with the following keys and data types: 'name' (string), 'category' (string, one word such as Dessert or Seafood), 'ingredients' (array of objects with 'name' and 'measure' strings, in the order they are used), and 'instructions' (array of strings, one per step). The JSON response should be clean and not contain any markdown formatting (e.g., ```json)."

	text, err := c.generateText(ctx, genai.ImageData(format, imageData), genai.Text(promptText))
	if err != nil {
		return nil, err
	}

	// Extract the JSON from the response, which might be wrapped in markdown
	startIndex := strings.Index(text, "{")
	endIndex := strings.LastIndex(text, "}")
	if startIndex == -1 || endIndex == -1 || startIndex > endIndex {
		return nil, fmt.Errorf("could not find JSON object in response: %s", text)
	}

	var d draft
	if err := json.Unmarshal([]byte(text[startIndex:endIndex+1]), &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recipe JSON: %w", err)
	}
	return d.toRecipe()
}

func (d draft) toRecipe() (*recipe.Recipe, error) {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return nil, fmt.Errorf("drafted recipe has no name")
	}

	r := &recipe.Recipe{
		Name:        name,
		Category:    strings.TrimSpace(d.Category),
		Ingredients: []recipe.Ingredient{},
	}
	for _, ing := range d.Ingredients {
		if strings.TrimSpace(ing.Name) == "" {
			continue
		}
		r.Ingredients = append(r.Ingredients, recipe.Ingredient{
			ID:      "ing-" + strconv.Itoa(len(r.Ingredients)+1),
			Name:    strings.TrimSpace(ing.Name),
			Measure: strings.TrimSpace(ing.Measure),
		})
	}
	r.Instructions = recipe.String(strings.Join(d.Instructions, "\n"))
	return r, nil
}

func (c *Client) isFoodImage(ctx context.Context, imageData []byte, format string) (bool, error) {
	text, err := c.generateText(ctx,
		genai.ImageData(format, imageData),
		genai.Text("Analyze the provided image. If it contains food, return a brief recipe description. If not, respond with 'NO' followed by a 5-word description of the image content."),
	)
	if err != nil {
		return false, err
	}
	return !strings.HasPrefix(strings.ToLower(strings.TrimSpace(text)), "no"), nil
}

func (c *Client) generateText(ctx context.Context, parts ...genai.Part) (string, error) {
	resp, err := c.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", err
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from Gemini")
	}

	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", fmt.Errorf("unexpected response format from Gemini")
	}
	return string(text), nil
}
