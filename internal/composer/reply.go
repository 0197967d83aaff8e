package composer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/akashsateesha/Clickless-IKEA/internal/cart"
	"github.com/akashsateesha/Clickless-IKEA/internal/catalog"
	"github.com/akashsateesha/Clickless-IKEA/internal/constraint"
	"github.com/akashsateesha/Clickless-IKEA/internal/resolver"
)

// DefaultMaxOptions is how many candidates a clarification lists.
const DefaultMaxOptions = 5

const excerptChars = 160

// Kind tells a UI which part of a Reply to render.
type Kind string

const (
	KindProducts  Kind = "products"
	KindNoResults Kind = "no_results"
	KindConfirm   Kind = "confirm"
	KindClarify   Kind = "clarify"
	KindCart      Kind = "cart"
	KindTotal     Kind = "cart_total"
	KindMessage   Kind = "message"
)

// Reply is the structured answer to one turn.
type Reply struct {
	Kind        Kind           `json:"kind"`
	Text        string         `json:"text"`
	Products    []ProductCard  `json:"products,omitempty"`
	Confirm     *ConfirmPrompt `json:"confirm,omitempty"`
	Clarify     *ClarifyPrompt `json:"clarify,omitempty"`
	Cart        *CartView      `json:"cart,omitempty"`
	Totals      *TotalsView    `json:"totals,omitempty"`
	Tier        resolver.Tier  `json:"tier,omitempty"`
	Confidence  float64        `json:"confidence,omitempty"`
	Ambiguous   bool           `json:"ambiguous,omitempty"`
	Constraints constraint.Set `json:"constraints,omitempty"`
}

// ProductCard is one product as shown to the shopper. Position is 1-based.
type ProductCard struct {
	Position  int      `json:"position"`
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Price     float64  `json:"price"`
	PriceText string   `json:"price_text"`
	Currency  string   `json:"currency,omitempty"`
	Category  string   `json:"category,omitempty"`
	Color     string   `json:"color,omitempty"`
	Features  []string `json:"features,omitempty"`
	URL       string   `json:"url,omitempty"`
	ImageURL  string   `json:"image_url,omitempty"`
	Excerpt   string   `json:"excerpt,omitempty"`
}

// ConfirmPrompt is a yes/no question about a single product.
type ConfirmPrompt struct {
	Op        Op     `json:"op"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Reasoning string `json:"reasoning,omitempty"`
	Chips     []Chip `json:"chips"`
}

// Option is a selectable candidate in a clarification. Index is 1-based.
type Option struct {
	Index     int    `json:"index"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Detail    string `json:"detail,omitempty"`
	Value     string `json:"value"`
}

// ClarifyPrompt asks for more detail. Style decides which field is set:
// Groups for chips, Options for candidates or cart lines.
type ClarifyPrompt struct {
	Style    ClarifyStyle           `json:"style"`
	Question string                 `json:"question"`
	Missing  []constraint.Dimension `json:"missing,omitempty"`
	Groups   []ChipGroup            `json:"groups,omitempty"`
	Options  []Option               `json:"options,omitempty"`
}

// CartView is a cart operation result with the current lines.
type CartView struct {
	Op       Op         `json:"op"`
	Success  bool       `json:"success"`
	Message  string     `json:"message,omitempty"`
	Lines    []LineView `json:"lines"`
	MediaRef string     `json:"media_ref,omitempty"`
}

// LineView is a cart line with rendered money.
type LineView struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
	URL       string `json:"url,omitempty"`
}

// TotalsView is the cart total breakdown.
type TotalsView struct {
	Items         int     `json:"items"`
	TaxRate       float64 `json:"tax_rate"`
	Subtotal      string  `json:"subtotal"`
	Tax           string  `json:"tax"`
	Total         string  `json:"total"`
	SubtotalCents int64   `json:"subtotal_cents"`
	TaxCents      int64   `json:"tax_cents"`
	TotalCents    int64   `json:"total_cents"`
}

// Composer renders outcomes. It holds no session state.
type Composer struct {
	MaxOptions int
}

// New creates a Composer listing at most maxOptions candidates per
// clarification. If maxOptions <= 0, DefaultMaxOptions is used.
func New(maxOptions int) *Composer {
	if maxOptions <= 0 {
		maxOptions = DefaultMaxOptions
	}
	return &Composer{MaxOptions: maxOptions}
}

// Compose renders o.
func (c *Composer) Compose(o Outcome) Reply {
	switch o := o.(type) {
	case ProductList:
		return c.products(o)
	case NoResults:
		return noResults(o)
	case Confirmation:
		return confirmation(o)
	case Clarification:
		return c.clarification(o)
	case CartOperation:
		return cartOperation(o)
	case CartTotal:
		return cartTotal(o)
	case FreeForm:
		return Reply{Kind: KindMessage, Text: o.Text}
	default:
		return Reply{Kind: KindMessage, Text: "Sorry, something went wrong."}
	}
}

func (c *Composer) products(o ProductList) Reply {
	cards := make([]ProductCard, len(o.Products))
	for i, p := range o.Products {
		cards[i] = card(i+1, p)
	}
	text := fmt.Sprintf("Here are %d products that match", len(cards))
	if terms := describeConstraints(o.Constraints); terms != "" {
		text += " " + terms
	}
	text += "."
	return Reply{Kind: KindProducts, Text: text, Products: cards, Constraints: o.Constraints.Clone()}
}

func noResults(o NoResults) Reply {
	text := "I couldn't find any products"
	if terms := describeConstraints(o.Constraints); terms != "" {
		text += " " + terms
	}
	text += ". Try widening your budget or choosing a different color."
	if o.Failed {
		text = "I couldn't search the catalog right now. Please try again in a moment."
	}
	return Reply{Kind: KindNoResults, Text: text, Constraints: o.Constraints.Clone()}
}

func confirmation(o Confirmation) Reply {
	verb, prep := "add", "to"
	if o.Op == OpRemove {
		verb, prep = "remove", "from"
	}
	return Reply{
		Kind: KindConfirm,
		Text: fmt.Sprintf("Just to confirm, did you want to %s %s %s your cart?", verb, o.Match.Name, prep),
		Confirm: &ConfirmPrompt{
			Op:        o.Op,
			ProductID: o.Match.ID,
			Name:      o.Match.Name,
			Reasoning: o.Reasoning,
			Chips:     []Chip{{"Yes", "yes"}, {"No", "no"}},
		},
		Tier:       resolver.TierConfirm,
		Confidence: o.Confidence,
	}
}

func (c *Composer) clarification(o Clarification) Reply {
	r := Reply{Kind: KindClarify, Confidence: o.Confidence, Ambiguous: o.Ambiguous}
	p := &ClarifyPrompt{Style: o.Style}

	switch o.Style {
	case StyleChips:
		p.Missing = append([]constraint.Dimension(nil), o.Missing...)
		p.Groups = ChipsFor(o.Missing)
		p.Question = "I'd love to help you find the right piece! A few quick questions to narrow it down."
	case StyleCartLines:
		r.Tier = resolver.TierClarify
		for i, l := range o.Lines {
			p.Options = append(p.Options, Option{
				Index:     i + 1,
				ProductID: l.ProductID,
				Name:      l.Name,
				Detail:    fmt.Sprintf("qty %d, %s", l.Quantity, cart.FormatCents(l.UnitPrice)),
				Value:     "remove " + l.Name,
			})
		}
		p.Question = fmt.Sprintf("I'm not sure which item you mean by %q. Which one should I remove?", o.Reference)
	default:
		r.Tier = resolver.TierClarify
		seen := make(map[string]bool, len(o.Options))
		for _, cand := range o.Options {
			if len(p.Options) == c.MaxOptions {
				break
			}
			if seen[cand.ID] {
				continue
			}
			seen[cand.ID] = true
			p.Options = append(p.Options, Option{
				Index:     len(p.Options) + 1,
				ProductID: cand.ID,
				Name:      cand.Name,
				Detail:    optionDetail(cand),
				Value:     fmt.Sprintf("add the %s", cand.Name),
			})
		}
		switch {
		case len(p.Options) == 0:
			p.Question = "I don't have any products to choose from yet. What are you looking for?"
		case o.Ambiguous && len(p.Options) > 1:
			p.Question = fmt.Sprintf("I found several products that might match %q. Which one would you like?", o.Reference)
		default:
			p.Question = fmt.Sprintf("I'm not sure which product you mean by %q. Which one would you like? You can also say \"the first one\".", o.Reference)
		}
	}

	r.Clarify = p
	r.Text = p.Question
	return r
}

func cartOperation(o CartOperation) Reply {
	view := &CartView{Op: o.Op, Success: o.Success, Message: o.Message, Lines: lineViews(o.Lines), MediaRef: o.MediaRef}
	r := Reply{Kind: KindCart, Cart: view, Confidence: o.Confidence}
	if o.Product != nil {
		r.Tier = resolver.TierFor(o.Confidence)
	}

	switch {
	case o.Op == OpView && o.Success && len(o.Lines) == 0:
		r.Text = "Your cart is empty."
	case o.Op == OpView && o.Success:
		r.Text = fmt.Sprintf("You have %d item(s) in your cart.", countItems(o.Lines))
	case o.Success && o.Product != nil && o.Op == OpAdd:
		r.Text = fmt.Sprintf("Added %s to your cart.", o.Product.Name)
	case o.Success && o.Product != nil && o.Op == OpRemove:
		r.Text = fmt.Sprintf("Removed %s from your cart.", o.Product.Name)
	case o.Success:
		r.Text = "Done."
	case o.Message != "":
		r.Text = o.Message
	default:
		r.Text = "Sorry, that cart operation failed."
	}
	return r
}

func cartTotal(o CartTotal) Reply {
	t := o.Totals
	return Reply{
		Kind: KindTotal,
		Text: fmt.Sprintf("Subtotal %s, tax %s, total %s.", cart.FormatCents(t.Subtotal), cart.FormatCents(t.Tax), cart.FormatCents(t.Total)),
		Cart: &CartView{Op: OpView, Success: true, Lines: lineViews(o.Lines)},
		Totals: &TotalsView{
			Items:         t.Items,
			TaxRate:       o.TaxRate,
			Subtotal:      cart.FormatCents(t.Subtotal),
			Tax:           cart.FormatCents(t.Tax),
			Total:         cart.FormatCents(t.Total),
			SubtotalCents: t.Subtotal,
			TaxCents:      t.Tax,
			TotalCents:    t.Total,
		},
	}
}

// Transcript is the plain-text form of r recorded in the session history.
func (r Reply) Transcript() string {
	var sb strings.Builder
	sb.WriteString(r.Text)
	for _, p := range r.Products {
		fmt.Fprintf(&sb, "\n%d. %s (%s)", p.Position, p.Name, p.PriceText)
	}
	if r.Clarify != nil {
		for _, o := range r.Clarify.Options {
			fmt.Fprintf(&sb, "\n%d. %s", o.Index, o.Name)
		}
	}
	return sb.String()
}

func card(pos int, p catalog.Product) ProductCard {
	return ProductCard{
		Position:  pos,
		ID:        p.ID,
		Name:      p.Name,
		Price:     p.Price,
		PriceText: cart.FormatCents(cart.ToCents(p.Price)),
		Currency:  p.Currency,
		Category:  p.Category,
		Color:     p.Color,
		Features:  append([]string(nil), p.Features...),
		URL:       p.URL,
		ImageURL:  p.ImageURL,
		Excerpt:   excerpt(p.Description),
	}
}

func excerpt(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= excerptChars {
		return s
	}
	end := excerptChars
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	if idx := strings.LastIndex(s[:end], " "); idx > 0 {
		end = idx
	}
	return s[:end] + "..."
}

func optionDetail(c resolver.Candidate) string {
	var parts []string
	if c.Color != "" {
		parts = append(parts, c.Color)
	}
	if c.Price > 0 {
		parts = append(parts, cart.FormatCents(cart.ToCents(c.Price)))
	}
	return strings.Join(parts, ", ")
}

func lineViews(lines []cart.Line) []LineView {
	out := make([]LineView, len(lines))
	for i, l := range lines {
		out[i] = LineView{
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: cart.FormatCents(l.UnitPrice),
			LineTotal: cart.FormatCents(l.UnitPrice * int64(l.Quantity)),
			URL:       l.URL,
		}
	}
	return out
}

func countItems(lines []cart.Line) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}

// describeConstraints renders a set as a short phrase, e.g.
// "for office chair in black under $300".
func describeConstraints(s constraint.Set) string {
	var parts []string
	if cats := s.Values(constraint.Category); len(cats) > 0 {
		parts = append(parts, "for "+strings.Join(cats, " or "))
	}
	if colors := s.Values(constraint.Color); len(colors) > 0 {
		parts = append(parts, "in "+strings.Join(colors, " or "))
	}
	if fs := s.Values(constraint.Feature); len(fs) > 0 {
		parts = append(parts, "with "+strings.Join(fs, " and "))
	}
	lo, hasLo, hi, hasHi := s.Bounds()
	switch {
	case hasLo && hasHi:
		parts = append(parts, fmt.Sprintf("between %s and %s", dollars(lo), dollars(hi)))
	case hasHi:
		parts = append(parts, "under "+dollars(hi))
	case hasLo:
		parts = append(parts, "over "+dollars(lo))
	}
	return strings.Join(parts, " ")
}

func dollars(v float64) string {
	c := cart.ToCents(v)
	if c%100 == 0 {
		return fmt.Sprintf("$%d", c/100)
	}
	return cart.FormatCents(c)
}
