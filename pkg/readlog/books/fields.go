package books

import (
	"strings"
	"time"

	"github.com/readinglog/readlog/pkg/readlog/apperr"
	"github.com/readinglog/readlog/pkg/readlog/models"
)

const dateLayout = "2006-01-02"

// editableColumns are written on update. owner_id and added_by never change.
var editableColumns = []string{
	"title", "author", "publication_date", "pages", "start_date", "end_date",
	"quote", "summary", "notes", "visibility", "updated_at",
}

func (f *Fields) trim() {
	f.Title = strings.TrimSpace(f.Title)
	f.Author = strings.TrimSpace(f.Author)
	f.PublicationDate = strings.TrimSpace(f.PublicationDate)
	f.StartDate = strings.TrimSpace(f.StartDate)
	f.EndDate = strings.TrimSpace(f.EndDate)
	f.Quote = strings.TrimSpace(f.Quote)
	f.Summary = strings.TrimSpace(f.Summary)
	f.Notes = strings.TrimSpace(f.Notes)
}

// apply merges the patch into b.
func (p *Patch) apply(b *models.Book) error {
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return apperr.InvalidInput("Title must not be empty")
		}
		b.Title = title
	}
	if p.Author != nil {
		author := strings.TrimSpace(*p.Author)
		if author == "" {
			return apperr.InvalidInput("Author must not be empty")
		}
		b.Author = author
	}
	if p.PublicationDate != nil {
		b.PublicationDate = optional(*p.PublicationDate)
	}
	if p.Pages != nil {
		if *p.Pages == 0 {
			b.Pages = nil
		} else {
			pages := *p.Pages
			b.Pages = &pages
		}
	}
	if p.StartDate != nil {
		b.StartDate = optional(*p.StartDate)
	}
	if p.EndDate != nil {
		b.EndDate = optional(*p.EndDate)
	}
	if p.Quote != nil {
		b.Quote = optional(*p.Quote)
	}
	if p.Summary != nil {
		b.Summary = optional(*p.Summary)
	}
	if p.Notes != nil {
		b.Notes = optional(*p.Notes)
	}
	if p.Visibility != nil {
		b.Visibility = *p.Visibility
	}
	return checkDates(b.StartDate, b.EndDate)
}

// optional maps a blank string to NULL.
func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// checkDates validates both reading dates and their order.
func checkDates(start, end *string) error {
	var from, to time.Time
	var err error
	if start != nil {
		if from, err = time.Parse(dateLayout, *start); err != nil {
			return apperr.InvalidInput("start_date must be a date in the form YYYY-MM-DD")
		}
	}
	if end != nil {
		if to, err = time.Parse(dateLayout, *end); err != nil {
			return apperr.InvalidInput("end_date must be a date in the form YYYY-MM-DD")
		}
	}
	if start != nil && end != nil && to.Before(from) {
		return apperr.InvalidInput("end_date must not be before start_date")
	}
	return nil
}
