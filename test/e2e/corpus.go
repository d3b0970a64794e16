// Package e2e provides end-to-end tests that run a corpus of records through
// the HTTP API.
package e2e

import (
	"fmt"
	"strings"

	"github.com/hyperjump/ruiji/internal/models"
)

// Article is a record in the E2E corpus.
type Article struct {
	ID    string
	Title string
	Body  string
	Topic string
}

// QueryTestCase defines a query and the record IDs of which at least one must
// appear in the search results.
type QueryTestCase struct {
	Query       string
	ExpectedIDs []string
	Description string
}

// Corpus holds articles and query test cases.
type Corpus struct {
	Articles     []Article
	TestCases    []QueryTestCase
	TotalRecords int
	TotalQueries int
}

// BuildCorpus returns a corpus of n articles. Each topic carries a signature
// phrase so queries can assert the right record comes back.
func BuildCorpus(n int) *Corpus {
	articles := buildArticles(n)
	cases := buildQueryTestCases(articles)
	return &Corpus{
		Articles:     articles,
		TestCases:    cases,
		TotalRecords: len(articles),
		TotalQueries: len(cases),
	}
}

type topic struct {
	title  string
	phrase string
	body   string
	kind   string
}

var topics = []topic{
	{"Sourdough Starter", "wild yeast starter", "Feed the wild yeast starter twice a day with equal weights of flour and water until it doubles.", "baking"},
	{"Laminated Dough", "laminated butter layers", "Croissants rely on laminated butter layers folded into the dough and chilled between turns.", "baking"},
	{"Pie Crust", "flaky pie crust", "Keep the fat cold and stop mixing early for a flaky pie crust that shatters when cut.", "baking"},
	{"Tempering Chocolate", "tempered chocolate snap", "Melt, cool and rewarm the couverture so the tempered chocolate snap and shine survive at room temperature.", "pastry"},
	{"Choux Pastry", "choux pastry puffs", "Cook the paste on the stove before piping so the choux pastry puffs rise hollow in the oven.", "pastry"},
	{"Fermented Hot Sauce", "lacto fermented chillies", "Submerge lacto fermented chillies in a two percent brine and burp the jar every day.", "preserving"},
	{"Quick Pickles", "refrigerator quick pickles", "Pour hot vinegar brine over sliced cucumbers for refrigerator quick pickles ready the next morning.", "preserving"},
	{"Jam Setting Point", "jam setting point", "Test the jam setting point by pushing a spoonful on a cold plate until it wrinkles.", "preserving"},
	{"Kimchi", "napa cabbage kimchi", "Salt the napa cabbage kimchi overnight, rinse, and rub it with gochugaru paste.", "preserving"},
	{"Braising", "low oven braise", "A low oven braise turns tough shoulder cuts tender after three hours under a lid.", "technique"},
	{"Searing", "Maillard browning crust", "Dry the meat and use a hot pan to build a Maillard browning crust before flipping.", "technique"},
	{"Sous Vide", "sous vide water bath", "Seal the steak and hold it in a sous vide water bath at fifty four degrees.", "technique"},
	{"Emulsions", "stable mayonnaise emulsion", "Add oil drop by drop to the yolk for a stable mayonnaise emulsion that will not split.", "technique"},
	{"Knife Skills", "julienne knife cuts", "Square off the carrot first, then slice planks into julienne knife cuts of equal width.", "technique"},
	{"Stock Making", "gelatinous chicken stock", "Roast the bones and simmer slowly for a gelatinous chicken stock that sets when cold.", "basics"},
	{"Rice Cooking", "absorption method rice", "Rinse the grains and use the absorption method rice ratio of one to one and a quarter.", "basics"},
	{"Pasta Water", "starchy pasta water", "Save a cup of starchy pasta water to loosen and gloss the sauce at the end.", "basics"},
	{"Vinaigrette", "three to one vinaigrette", "Whisk a three to one vinaigrette of oil to vinegar with mustard as the binder.", "basics"},
	{"Roux", "blond roux thickener", "Cook flour in butter only until it smells nutty for a blond roux thickener.", "basics"},
	{"Wok Cooking", "wok hei smokiness", "Cook in small batches over a roaring flame to get wok hei smokiness into the noodles.", "asian"},
	{"Dumpling Folding", "pleated dumpling wrappers", "Wet the rim and pinch twelve folds into pleated dumpling wrappers before steaming.", "asian"},
	{"Ramen Broth", "tonkotsu pork broth", "Boil pork bones hard for twelve hours to emulsify a cloudy tonkotsu pork broth.", "asian"},
	{"Curry Paste", "pounded curry paste", "Grind lemongrass, galangal and chillies in a mortar for a fragrant pounded curry paste.", "asian"},
	{"Tortillas", "nixtamalized corn masa", "Press nixtamalized corn masa into thin rounds and cook them on a dry comal.", "latin"},
	{"Mole", "mole poblano sauce", "Toast the dried chillies and seeds before blending them into mole poblano sauce.", "latin"},
	{"Ceviche", "citrus cured ceviche", "Cut the fish small so the lime juice works through the citrus cured ceviche in minutes.", "latin"},
	{"Risotto", "arborio rice risotto", "Add hot stock a ladle at a time and stir the arborio rice risotto until creamy.", "italian"},
	{"Fresh Pasta", "egg yolk pasta dough", "Knead the egg yolk pasta dough for ten minutes and rest it before rolling.", "italian"},
	{"Pizza Dough", "cold fermented pizza dough", "Leave the cold fermented pizza dough in the fridge for three days for better blistering.", "italian"},
	{"Tagine", "preserved lemon tagine", "Slow cook chicken with olives in a preserved lemon tagine until the sauce reduces.", "north-african"},
	{"Hummus", "silky chickpea hummus", "Peel the cooked chickpeas for silky chickpea hummus and blend with ice water.", "middle-eastern"},
	{"Flatbread", "puffed pita pockets", "Bake the rounds on a very hot stone so the puffed pita pockets open in the middle.", "middle-eastern"},
	{"Smoking", "low and slow smoking", "Keep the smoker near one hundred ten degrees for low and slow smoking of brisket.", "barbecue"},
	{"Dry Rubs", "paprika brown sugar rub", "Coat the ribs in a paprika brown sugar rub the night before they hit the grill.", "barbecue"},
	{"Ice Cream", "custard base ice cream", "Cook the custard base ice cream mix to eighty degrees and age it overnight.", "dessert"},
	{"Meringue", "stiff peak meringue", "Whip whites with sugar added slowly until stiff peak meringue holds its shape.", "dessert"},
	{"Caramel", "dry caramel method", "Melt sugar alone in the pan with the dry caramel method and swirl instead of stirring.", "dessert"},
	{"Coffee Brewing", "pour over coffee bloom", "Wet the grounds and wait thirty seconds for the pour over coffee bloom.", "drinks"},
	{"Tea Steeping", "green tea steeping temperature", "Keep the green tea steeping temperature near seventy degrees to avoid bitterness.", "drinks"},
	{"Cocktail Syrups", "rich simple syrup", "Dissolve two parts sugar in one part water for a rich simple syrup that keeps longer.", "drinks"},
}

func buildArticles(n int) []Article {
	out := make([]Article, 0, n)
	for i := 0; i < n; i++ {
		tp := topics[i%len(topics)]
		title := tp.title
		if i >= len(topics) {
			title = fmt.Sprintf("%s (%d)", tp.title, i+1)
		}
		out = append(out, Article{
			ID:    fmt.Sprintf("article-%03d", i+1),
			Title: title,
			Body:  tp.body,
			Topic: tp.kind,
		})
	}
	return out
}

func buildQueryTestCases(articles []Article) []QueryTestCase {
	var cases []QueryTestCase
	for _, tp := range topics {
		var ids []string
		for _, a := range articles {
			if containsPhrase(a, tp.phrase) {
				ids = append(ids, a.ID)
			}
		}
		if len(ids) == 0 {
			continue
		}
		cases = append(cases, QueryTestCase{
			Query:       tp.phrase,
			ExpectedIDs: ids,
			Description: fmt.Sprintf("query %q should return %s", tp.phrase, ids[0]),
		})
	}
	return cases
}

func containsPhrase(a Article, phrase string) bool {
	return strings.Contains(a.Title, phrase) || strings.Contains(a.Body, phrase)
}

// RecordInputs converts the corpus articles to record inputs of recordType.
func (c *Corpus) RecordInputs(recordType string) []models.RecordInput {
	out := make([]models.RecordInput, len(c.Articles))
	for i, a := range c.Articles {
		out[i] = models.RecordInput{
			ID:   a.ID,
			Type: recordType,
			Fields: map[string]interface{}{
				"title": a.Title,
				"body":  a.Body,
				"topic": a.Topic,
			},
		}
	}
	return out
}
