package models

import "time"

// Page is an admin-authored static page, optionally listed in the navbar.
type Page struct {
	ID         string    `json:"id" db:"id"`
	Slug       string    `json:"slug" db:"slug"`
	Title      string    `json:"title" db:"title"`
	Content    string    `json:"content" db:"content"`
	ImageURL   *string   `json:"image_url" db:"image_url"`
	ButtonText *string   `json:"button_text" db:"button_text"`
	ButtonLink *string   `json:"button_link" db:"button_link"`
	ShowInNav  bool      `json:"show_in_nav" db:"show_in_nav"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

func (p *Page) Columns() map[string]any {
	cols := map[string]any{
		"slug":        p.Slug,
		"title":       p.Title,
		"content":     p.Content,
		"image_url":   p.ImageURL,
		"button_text": p.ButtonText,
		"button_link": p.ButtonLink,
		"show_in_nav": p.ShowInNav,
	}
	if p.ID != "" {
		cols["id"] = p.ID
	}
	if !p.CreatedAt.IsZero() {
		cols["created_at"] = p.CreatedAt
	}
	if !p.UpdatedAt.IsZero() {
		cols["updated_at"] = p.UpdatedAt
	}
	return cols
}

// PagePatch is a partial page update.
type PagePatch struct {
	Slug       *string `json:"slug,omitempty"`
	Title      *string `json:"title,omitempty"`
	Content    *string `json:"content,omitempty"`
	ImageURL   *string `json:"image_url,omitempty"`
	ButtonText *string `json:"button_text,omitempty"`
	ButtonLink *string `json:"button_link,omitempty"`
	ShowInNav  *bool   `json:"show_in_nav,omitempty"`
}

// Columns returns the set fields plus updated_at.
func (p PagePatch) Columns(now time.Time) map[string]any {
	cols := map[string]any{"updated_at": now}
	if p.Slug != nil {
		cols["slug"] = *p.Slug
	}
	if p.Title != nil {
		cols["title"] = *p.Title
	}
	if p.Content != nil {
		cols["content"] = *p.Content
	}
	if p.ImageURL != nil {
		cols["image_url"] = *p.ImageURL
	}
	if p.ButtonText != nil {
		cols["button_text"] = emptyToNil(*p.ButtonText)
	}
	if p.ButtonLink != nil {
		cols["button_link"] = emptyToNil(*p.ButtonLink)
	}
	if p.ShowInNav != nil {
		cols["show_in_nav"] = *p.ShowInNav
	}
	return cols
}

// NavLink is the navbar projection of a page.
type NavLink struct {
	ID    string `json:"id"`
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

func emptyToNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}
