package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"biostar/app/markdown"
)

var statusNames = map[PostStatus]string{
	StatusPending: "Pending",
	StatusOpen:    "Open",
	StatusClosed:  "Closed",
	StatusDeleted: "Deleted",
}

var typeNames = map[PostType]string{
	TypeQuestion: "Question",
	TypeAnswer:   "Answer",
	TypeJob:      "Job",
	TypeForum:    "Forum",
	TypePage:     "Page",
	TypeBlog:     "Blog",
	TypeComment:  "Comment",
	TypeData:     "Data",
	TypeTutorial: "Tutorial",
	TypeBoard:    "Bulletin Board",
	TypeTool:     "Tool",
	TypeNews:     "News",
}

func (s PostStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("PostStatus(%d)", int(s))
}

// ParseStatus maps a case-insensitive status name to its value.
func ParseStatus(name string) (PostStatus, error) {
	for status, label := range statusNames {
		if strings.EqualFold(label, name) {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown post status %q", name)
}

func (t PostType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("PostType(%d)", int(t))
}

// Slug is the single tag that names the type, e.g. "bulletin-board".
func (t PostType) Slug() string {
	return strings.ReplaceAll(strings.ToLower(t.String()), " ", "-")
}

// IsTopLevel reports whether posts of this type start a thread.
func (t PostType) IsTopLevel() bool {
	return t != TypeAnswer && t != TypeComment && typeNames[t] != ""
}

// TopLevelTypes lists the types a new thread may have, in menu order.
func TopLevelTypes() []PostType {
	return []PostType{TypeQuestion, TypeForum, TypeTutorial, TypeJob, TypeTool, TypeData, TypeNews, TypeBlog, TypePage, TypeBoard}
}

// Validate checks if the post meets all validation requirements
func (p *Post) Validate() error {
	if err := validate.Struct(p); err != nil {
		return err
	}

	if p.CreatedAt.IsZero() {
		return errors.New("created_at cannot be zero")
	}

	return nil
}

// BeforeCreate fills in the fields every new post needs.
func (p *Post) BeforeCreate() {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if p.UID == "" {
		p.UID = NewUID(13)
	}
	if p.LastEditAt.IsZero() {
		p.LastEditAt = p.CreatedAt
	}
	if p.LastEditUserID == 0 {
		p.LastEditUserID = p.AuthorID
	}
}

func (p *Post) IsOpen() bool {
	return p.Status == StatusOpen
}

func (p *Post) IsDeleted() bool {
	return p.Status == StatusDeleted
}

func (p *Post) IsComment() bool {
	return p.Type == TypeComment
}

func (p *Post) IsAnswer() bool {
	return p.Type == TypeAnswer
}

func (p *Post) IsTopLevel() bool {
	return p.Type.IsTopLevel()
}

// IsRoot reports whether the post is the first post of its thread.
func (p *Post) IsRoot() bool {
	return p.RootID == 0 || p.RootID == p.ID
}

// DisplayTitle prefixes the status to the title of posts that are not open.
func (p *Post) DisplayTitle() string {
	if p.IsOpen() {
		return p.Title
	}
	return fmt.Sprintf("(%s) %s", p.Status, p.Title)
}

// Tags splits the canonical tag value on commas and whitespace.
func (p *Post) Tags() []string {
	return SplitTags(p.TagVal)
}

// AsText returns the post body with all markup removed.
func (p *Post) AsText() string {
	if p.HTML != "" {
		return markdown.StripTags(p.HTML)
	}
	return markdown.StripTags(p.Content)
}

// Peek returns the first length runes of the plain text body.
func (p *Post) Peek(length int) string {
	text := []rune(strings.TrimSpace(p.AsText()))
	if len(text) <= length {
		return string(text)
	}
	return string(text[:length])
}

// AgeInDays is the number of whole days since creation.
func (p *Post) AgeInDays() int {
	return int(time.Since(p.CreatedAt).Hours() / 24)
}

// SplitTags turns "a, b c" into ["a", "b", "c"], dropping duplicates and empties.
func SplitTags(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '+' || r == ' ' || r == '\t' || r == '\n'
	})
	seen := make(map[string]bool, len(fields))
	tags := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		tags = append(tags, f)
	}
	return tags
}

// TagQuery selects thread starters by tag. A post matches when it carries
// one of Include (or Include is empty) and none of Exclude.
type TagQuery struct {
	Include []string
	Exclude []string
}

// ParseTagQuery reads "bwa,samtools" or "rna-seq+deseq2!" style queries.
// Terms are split on commas, or on '+' when there is no comma. A '+' that
// arrives URL decoded as a space separates terms too. A trailing '!'
// excludes the tag.
func ParseTagQuery(text string) TagQuery {
	split := func(r rune) bool { return r == '+' || unicode.IsSpace(r) }
	if strings.Contains(text, ",") {
		split = func(r rune) bool { return r == ',' }
	}
	var q TagQuery
	for _, term := range strings.FieldsFunc(text, split) {
		term = strings.ToLower(strings.TrimSpace(term))
		exclude := strings.HasSuffix(term, "!")
		term = strings.TrimSpace(strings.TrimSuffix(term, "!"))
		switch {
		case term == "":
		case exclude:
			q.Exclude = append(q.Exclude, term)
		default:
			q.Include = append(q.Include, term)
		}
	}
	return q
}

// IsZero reports whether the query selects every post.
func (q TagQuery) IsZero() bool {
	return len(q.Include) == 0 && len(q.Exclude) == 0
}

// String renders the query back in its comma form.
func (q TagQuery) String() string {
	terms := append([]string(nil), q.Include...)
	for _, tag := range q.Exclude {
		terms = append(terms, tag+"!")
	}
	return strings.Join(terms, ",")
}

// Matches reports whether a post with tags is selected.
func (q TagQuery) Matches(tags []string) bool {
	have := make(map[string]bool, len(tags))
	for _, tag := range tags {
		have[tag] = true
	}
	for _, tag := range q.Exclude {
		if have[tag] {
			return false
		}
	}
	if len(q.Include) == 0 {
		return true
	}
	for _, tag := range q.Include {
		if have[tag] {
			return true
		}
	}
	return false
}
