package rewriter

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/SmillingSword/news-reynra/internal/catalog"
	"github.com/SmillingSword/news-reynra/internal/types"
)

var titlePatterns = []string{
	"%s",
	"HEBOH! %s",
	"%s, Gamer Wajib Tahu!",
	"Kabar Terbaru: %s",
	"VIRAL! %s",
	"%s, Ini Faktanya!",
}

var intros = []string{
	"Kabar mengejutkan datang dari dunia gaming!",
	"Para gamer, bersiaplah dengan kabar terbaru yang satu ini!",
	"Dunia game kembali dihebohkan oleh berita yang sedang ramai dibicarakan.",
	"Ini dia berita yang lagi viral di kalangan gamer Indonesia!",
	"Siap-siap, ada kabar seru yang sayang banget untuk dilewatkan!",
}

var gameIntros = []string{
	"Kabar terbaru dari %s kembali bikin heboh komunitas gamer Indonesia!",
	"Penggemar %s, merapat! Ada kabar seru yang wajib kalian simak.",
	"%s lagi-lagi jadi sorotan para gamer tanah air.",
}

var outros = []string{
	"Bagaimana menurut kalian? Tulis pendapat kalian di kolom komentar!",
	"Pantau terus berita gaming terbaru hanya di sini, ya!",
	"Jangan lupa bagikan berita ini ke teman mabar kalian!",
	"Kami akan terus update informasi terbarunya. Stay tuned, gamer!",
}

var transitions = []string{
	"Tidak hanya itu,",
	"Menariknya,",
	"Selain itu,",
	"Yang lebih seru lagi,",
	"Di sisi lain,",
	"Perlu dicatat,",
}

// substitutions apply on word boundaries; the first letter's case is kept.
var substitutions = []struct {
	from *regexp.Regexp
	to   string
}{
	{regexp.MustCompile(`(?i)\bsangat\b`), "benar-benar"},
	{regexp.MustCompile(`(?i)\bmenarik\b`), "seru"},
	{regexp.MustCompile(`(?i)\bpopuler\b`), "viral"},
	{regexp.MustCompile(`(?i)\bpemain\b`), "gamer"},
	{regexp.MustCompile(`(?i)\bbagus\b`), "keren"},
	{regexp.MustCompile(`(?i)\bmengumumkan\b`), "resmi mengumumkan"},
}

var analysisTemplates = []string{
	"Langkah %s ini menunjukkan keseriusan mereka dalam menghadirkan pengalaman bermain terbaik bagi para gamer.",
	"Keputusan %s ini dinilai strategis dan bisa mengubah peta persaingan di industri game.",
	"Dari sudut pandang industri, apa yang dilakukan %s ini patut diapresiasi.",
}

var reactionTemplates = []string{
	"Komunitas %s di media sosial langsung ramai membahas kabar ini. Banyak yang antusias, meski ada juga yang masih menunggu bukti nyata.",
	"Para penggemar %s menyambut kabar ini dengan antusias. Linimasa media sosial pun dipenuhi beragam reaksi.",
}

var futureTemplates = []string{
	"Ke depannya, perkembangan %s akan menarik untuk terus diikuti, terutama bagi gamer di Indonesia.",
	"Bukan tidak mungkin kabar ini menjadi awal dari langkah besar %s berikutnya.",
}

var conclusionTemplates = []string{
	"Secara keseluruhan, kabar ini menjadi angin segar bagi para penggemar %s.",
	"Yang jelas, %s masih akan terus menjadi perbincangan hangat dalam beberapa waktu ke depan.",
}

const genericSubject = "dunia gaming"

// Fallback rewrites articles from templates. Output depends only on the seed
// and the input, so a fixed seed gives reproducible articles.
type Fallback struct {
	seed int64
}

// NewFallback creates a Fallback with the given seed.
func NewFallback(seed int64) *Fallback {
	return &Fallback{seed: seed}
}

func (f *Fallback) rng(title, raw string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(raw))
	return rand.New(rand.NewSource(f.seed ^ int64(h.Sum64())))
}

// Rewrite never fails and always returns non-empty content.
func (f *Fallback) Rewrite(raw, title, category string) types.RewriteResult {
	rng := f.rng(title, raw)
	paragraphs := Paragraphs(raw)
	title = strings.TrimSpace(types.StripTags(title))

	text := title + " " + strings.Join(paragraphs, " ")
	games := catalog.DetectGames(text)
	companies := catalog.DetectCompanies(text)

	subject := genericSubject
	if len(games) > 0 {
		subject = games[0]
	} else if category != "" {
		subject = "dunia " + strings.ToLower(category)
	}
	actor := subject
	if len(companies) > 0 {
		actor = companies[0]
	}

	var intro string
	if len(games) > 0 {
		intro = fmt.Sprintf(pick(rng, gameIntros), games[0])
	} else {
		intro = pick(rng, intros)
	}

	body := []string{intro}
	for i, p := range paragraphs {
		p = substitute(p)
		if i > 0 && i%2 == 1 {
			p = pick(rng, transitions) + " " + p
		}
		body = append(body, p)
	}
	if len(paragraphs) == 0 {
		body = append(body, fmt.Sprintf("Informasi lengkap mengenai %s masih terus kami kumpulkan. Nantikan pembaruan selanjutnya.", subject))
	}

	body = append(body,
		heading("Analisis"),
		fmt.Sprintf(pick(rng, analysisTemplates), actor),
		heading("Reaksi Komunitas"),
		fmt.Sprintf(pick(rng, reactionTemplates), subject),
		heading("Dampak ke Depan"),
		fmt.Sprintf(pick(rng, futureTemplates), subject),
		heading("Kesimpulan"),
		fmt.Sprintf(pick(rng, conclusionTemplates), subject),
		pick(rng, outros),
	)

	newTitle := rewriteTitle(rng, title)

	excerptSource := intro
	if len(paragraphs) > 0 {
		excerptSource = intro + " " + substitute(paragraphs[0])
	}

	content := toHTML(body)
	return types.RewriteResult{
		Title:          newTitle,
		Excerpt:        types.Truncate(excerptSource, ExcerptLimit),
		Content:        content,
		RewrittenBy:    types.RewrittenByFallback,
		OriginalLength: types.TextLength(raw),
		RewriteLength:  types.TextLength(content),
	}
}

func rewriteTitle(rng *rand.Rand, title string) string {
	if title == "" {
		return "Berita Game Terbaru Hari Ini"
	}
	out := fmt.Sprintf(pick(rng, titlePatterns), strings.TrimRight(title, ".!? "))
	if utf8.RuneCountInString(out) > TitleLimit {
		return title
	}
	return out
}

func pick(rng *rand.Rand, pool []string) string {
	return pool[rng.Intn(len(pool))]
}

func substitute(p string) string {
	for _, s := range substitutions {
		p = s.from.ReplaceAllStringFunc(p, func(m string) string {
			r, _ := utf8.DecodeRuneInString(m)
			if unicode.IsUpper(r) {
				return upperFirst(s.to)
			}
			return s.to
		})
	}
	return p
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
