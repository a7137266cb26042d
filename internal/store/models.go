package store

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// ItemType is the category partition an item lives in.
type ItemType string

const (
	TypeMovies ItemType = "movies"
	TypeGames  ItemType = "games"
	TypeBooks  ItemType = "books"
)

// Limits, in characters, the remote table enforces on every write.
const (
	MaxTitleLength       = 90
	MaxDescriptionLength = 2000
	MaxIDLength          = 128
)

// ItemTypes lists every partition in display order.
var ItemTypes = []ItemType{TypeMovies, TypeGames, TypeBooks}

func ParseItemType(value string) (ItemType, error) {
	switch ItemType(strings.ToLower(strings.TrimSpace(value))) {
	case TypeMovies:
		return TypeMovies, nil
	case TypeGames:
		return TypeGames, nil
	case TypeBooks:
		return TypeBooks, nil
	}
	return "", fmt.Errorf("unknown item type %q", value)
}

func (t ItemType) Valid() bool {
	switch t {
	case TypeMovies, TypeGames, TypeBooks:
		return true
	}
	return false
}

// Noun is the singular word used when searching the web for an item.
func (t ItemType) Noun() string {
	switch t {
	case TypeMovies:
		return "movie"
	case TypeGames:
		return "game"
	case TypeBooks:
		return "book"
	}
	return ""
}

type Item struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Type        ItemType   `json:"type"`
	Order       *int       `json:"order,omitempty"`
	UserID      string     `json:"user_id,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// Rank returns the remote order of the item, or -1 when it has none.
func (i Item) Rank() int {
	if i.Order == nil {
		return -1
	}
	return *i.Order
}

// WithOrder returns a copy of the item ranked at order.
func (i Item) WithOrder(order int) Item {
	i.Order = &order
	return i
}

type ItemOrder struct {
	ID    string `json:"id"`
	Order int    `json:"order"`
}

// NormalizeTitle trims and NFC-normalizes a title. It returns an empty string
// when nothing but whitespace was given.
func NormalizeTitle(title string) string {
	return norm.NFC.String(strings.TrimSpace(title))
}

// TitleTooLong reports whether a normalized title exceeds MaxTitleLength.
func TitleTooLong(title string) bool {
	return utf8.RuneCountInString(title) > MaxTitleLength
}

func DescriptionTooLong(description string) bool {
	return utf8.RuneCountInString(description) > MaxDescriptionLength
}

// Truncate cuts value to at most n characters.
func Truncate(value string, n int) string {
	if utf8.RuneCountInString(value) <= n {
		return value
	}
	runes := []rune(value)
	return string(runes[:n])
}

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
