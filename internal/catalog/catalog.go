// Package catalog holds the static game, publisher and category tables used
// to tag and rewrite gaming news.
package catalog

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Games are the titles the rewriter and categorizer recognise, most specific
// first so "PUBG Mobile" wins over "PUBG".
var Games = []string{
	"Mobile Legends", "Honor of Kings", "PUBG Mobile", "PUBG", "Free Fire",
	"Genshin Impact", "Honkai: Star Rail", "Zenless Zone Zero", "Wuthering Waves",
	"Valorant", "League of Legends", "Wild Rift", "Dota 2", "Counter-Strike 2",
	"Apex Legends", "Fortnite", "Call of Duty", "Minecraft", "Roblox",
	"Elden Ring", "GTA 6", "GTA V", "Grand Theft Auto", "Cyberpunk 2077",
	"Final Fantasy", "Resident Evil", "Monster Hunter", "Street Fighter",
	"Tekken 8", "The Legend of Zelda", "Pokemon", "Pokémon", "EA Sports FC",
	"eFootball", "Black Myth: Wukong", "Hollow Knight", "Palworld",
}

// Companies are publishers, developers and platform holders.
var Companies = []string{
	"Moonton", "Tencent", "Garena", "Krafton", "HoYoverse", "miHoYo",
	"Riot Games", "Valve", "Epic Games", "Activision", "Blizzard",
	"Electronic Arts", "Ubisoft", "Capcom", "Square Enix", "Bandai Namco",
	"FromSoftware", "Rockstar Games", "Nintendo", "Sony", "Microsoft",
	"Sega", "Konami", "CD Projekt", "Game Science",
}

// Category is an article category with the keywords that select it.
type Category struct {
	Name     string
	Slug     string
	Keywords []string
}

// Bucket is a group of mutually exclusive categories. An article receives at
// most one category per bucket: the first whose keywords match.
type Bucket struct {
	Name       string
	Categories []Category
}

// Buckets is the category table for gaming sources.
var Buckets = []Bucket{
	{
		Name: "platform",
		Categories: []Category{
			{Name: "Mobile", Slug: "mobile", Keywords: []string{"mobile", "android", "ios", "smartphone", "mobile legends", "pubg mobile", "free fire", "honor of kings", "wild rift"}},
			{Name: "PlayStation", Slug: "playstation", Keywords: []string{"playstation", "ps5", "ps4", "ps vita"}},
			{Name: "Xbox", Slug: "xbox", Keywords: []string{"xbox", "game pass"}},
			{Name: "Nintendo", Slug: "nintendo", Keywords: []string{"nintendo", "switch 2", "nintendo switch"}},
			{Name: "PC", Slug: "pc", Keywords: []string{"pc", "steam", "epic games store", "windows"}},
		},
	},
	{
		Name: "topic",
		Categories: []Category{
			{Name: "Esports", Slug: "esports", Keywords: []string{"esports", "e-sports", "turnamen", "tournament", "mpl", "msc", "liga", "championship", "kejuaraan"}},
			{Name: "Review", Slug: "review", Keywords: []string{"review", "ulasan", "hands-on"}},
			{Name: "Tips & Guide", Slug: "tips-guide", Keywords: []string{"tips", "guide", "panduan", "cara", "tutorial", "build terbaik"}},
			{Name: "Update", Slug: "update", Keywords: []string{"update", "patch", "season", "musim", "event", "pembaruan"}},
			{Name: "Rilis", Slug: "rilis", Keywords: []string{"rilis", "release", "launch", "trailer", "diumumkan", "announced"}},
			{Name: "Hardware", Slug: "hardware", Keywords: []string{"gpu", "konsol", "console", "controller", "headset", "laptop gaming"}},
		},
	},
}

// Categorize returns the first matching category of each bucket, in bucket
// order. No match is a valid result.
func Categorize(text string) []Category {
	lower := strings.ToLower(text)
	var out []Category
	for _, b := range Buckets {
		for _, c := range b.Categories {
			if matchAny(lower, c.Keywords) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// DetectGames returns the known game titles mentioned in text, in table order.
func DetectGames(text string) []string {
	return detect(text, Games)
}

// DetectCompanies returns the known companies mentioned in text, in table
// order.
func DetectCompanies(text string) []string {
	return detect(text, Companies)
}

func detect(text string, names []string) []string {
	lower := strings.ToLower(text)
	var out []string
	seen := make(map[string]bool)
	for _, name := range names {
		key := strings.ToLower(name)
		if !ContainsWord(lower, key) {
			continue
		}
		// skip shorter names contained in one already found ("PUBG" after "PUBG Mobile")
		covered := false
		for found := range seen {
			if strings.Contains(found, key) {
				covered = true
				break
			}
		}
		if covered {
			continue
		}
		seen[key] = true
		out = append(out, name)
	}
	return out
}

func matchAny(lower string, keywords []string) bool {
	for _, k := range keywords {
		if ContainsWord(lower, k) {
			return true
		}
	}
	return false
}

// ContainsWord reports whether word occurs in text on word boundaries. Both
// arguments are expected in lower case.
func ContainsWord(text, word string) bool {
	if word == "" {
		return false
	}
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], word)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(word)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		from = start + size
	}
	return false
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
