package hydrate

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/goliatone/go-query/match"
)

// NormalizePost prepares a post for display: it picks a canonical image,
// decodes HTML entities and strips markup from the title, excerpt and
// content. post is not modified.
func NormalizePost(post match.Post) match.Post {
	out := post
	out.CanonicalImage = canonicalImage(post)
	out.Title, _ = plainText(post.Title)
	out.Excerpt, _ = plainText(post.Excerpt)
	out.Content, _ = plainText(post.Content)
	return out
}

// NormalizePosts applies NormalizePost to every post of the response.
func NormalizePosts(_ Context, resp *PostsResponse) error {
	normalized := make([]match.Post, len(resp.Posts))
	for i, post := range resp.Posts {
		normalized[i] = NormalizePost(post)
	}
	resp.Posts = normalized
	return nil
}

// canonicalImage prefers the featured image, then the first <img> of the
// content. An image already set is kept.
func canonicalImage(post match.Post) *match.Image {
	if post.CanonicalImage != nil {
		image := *post.CanonicalImage
		return &image
	}
	uri := strings.TrimSpace(post.FeaturedImage)
	if uri == "" {
		_, uri = plainText(post.Content)
	}
	if uri == "" {
		return nil
	}
	return &match.Image{URI: uri, Type: "image"}
}

// plainText returns the decoded text of fragment with markup removed and
// whitespace collapsed, and the src of its first image.
func plainText(fragment string) (text, firstImage string) {
	if fragment == "" {
		return "", ""
	}
	var b strings.Builder
	skip := 0
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " "), firstImage
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Script, atom.Style:
				if tok.Type == html.StartTagToken {
					skip++
				}
			case atom.Img:
				if firstImage == "" {
					firstImage = attr(tok, "src")
				}
			case atom.Br, atom.P, atom.Div, atom.Li:
				b.WriteByte(' ')
			}
		case html.EndTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Script, atom.Style:
				if skip > 0 {
					skip--
				}
			case atom.P, atom.Div, atom.Li:
				b.WriteByte(' ')
			}
		}
	}
}

func attr(tok html.Token, name string) string {
	for _, a := range tok.Attr {
		if a.Key == name {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}
