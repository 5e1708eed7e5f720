package rewriter

import (
	"fmt"
	"regexp"
	"strings"
)

// Persona is the system prompt sent with every rewrite.
const Persona = "Kamu adalah penulis konten gaming Indonesia yang berpengalaman. " +
	"Kamu menulis ulang berita game dengan bahasa Indonesia yang santai, akurat, dan menarik " +
	"untuk pembaca muda, tanpa mengarang fakta baru."

// maxPromptContent bounds the source text sent to the model.
const maxPromptContent = 6000

const promptTemplate = `Tulis ulang berita game berikut menjadi artikel orisinal dalam Bahasa Indonesia.

Ketentuan:
- Pertahankan semua fakta penting (nama game, perusahaan, tanggal, angka).
- Gunakan gaya bahasa yang santai namun informatif.
- Buat judul baru yang menarik, maksimal 100 karakter.
- Buat excerpt maksimal 160 karakter.
- Konten minimal 4 paragraf.

Kategori: %s
Judul asli: %s

Konten asli:
%s

Jawab persis dengan format berikut:
JUDUL: <judul baru>
EXCERPT: <ringkasan singkat>
KONTEN:
<isi artikel>`

func buildPrompt(cleaned, title, category string) string {
	if category == "" {
		category = "Gaming"
	}
	r := []rune(cleaned)
	if len(r) > maxPromptContent {
		cleaned = string(r[:maxPromptContent])
	}
	return fmt.Sprintf(promptTemplate, category, title, cleaned)
}

var labelRe = regexp.MustCompile(`(?im)^[\s*#_]*(JUDUL|EXCERPT|KONTEN)[\s*_]*:[\s*_]*`)

// reply holds the labeled sections of a model reply.
type reply struct {
	Title   string
	Excerpt string
	Content string
}

// parseReply splits a reply on its JUDUL/EXCERPT/KONTEN labels. A reply
// without a KONTEN label is all content.
func parseReply(text string) reply {
	locs := labelRe.FindAllStringSubmatchIndex(text, -1)
	sections := make(map[string]string)
	for i, loc := range locs {
		label := strings.ToUpper(text[loc[2]:loc[3]])
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if _, dup := sections[label]; !dup {
			sections[label] = strings.TrimSpace(text[loc[1]:end])
		}
	}

	content, ok := sections["KONTEN"]
	if !ok {
		return reply{Content: strings.TrimSpace(text)}
	}
	return reply{
		Title:   strings.Trim(sections["JUDUL"], `"* `),
		Excerpt: strings.Trim(sections["EXCERPT"], `"* `),
		Content: content,
	}
}
