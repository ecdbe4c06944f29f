package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bilgisen/shiurim/internal/apperr"
	"github.com/bilgisen/shiurim/internal/cache"
	"github.com/bilgisen/shiurim/internal/models"
	"github.com/bilgisen/shiurim/internal/store/filestore"
)

func day(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

var sample = []models.Shiur{
	{
		Slug:        "bitachon",
		Title:       "Bitachon in Hard Times",
		Description: "Trust",
		Tags:        []string{"Emunah"},
		Timestamps:  []models.TimestampTopic{{Topic: "Yosef", Time: "01:00"}},
		CreatedAt:   day("2024-05-03T22:30:00Z"),
	},
	{
		Slug:       "shabbos",
		Title:      "Hilchos Shabbos",
		Tags:       []string{"halacha"},
		Timestamps: []models.TimestampTopic{{Topic: "Muktzeh", Time: "02:00"}, {Topic: "Yosef", Time: "03:00"}},
		CreatedAt:  day("2024-05-02T08:00:00Z"),
	},
	{
		Slug:      "tefillah",
		Title:     "Kavanah",
		CreatedAt: day("2024-04-01T08:00:00Z"),
	},
}

func slugs(list []models.Shiur) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.Slug
	}
	return out
}

func TestFilterApply(t *testing.T) {
	tests := []struct {
		name               string
		q, topic, from, to string
		want               []string
	}{
		{name: "no filter", want: []string{"bitachon", "shabbos", "tefillah"}},
		{name: "title case insensitive", q: "SHABBOS", want: []string{"shabbos"}},
		{name: "tag", q: "emu", want: []string{"bitachon"}},
		{name: "timestamp topic", q: "muktzeh", want: []string{"shabbos"}},
		{name: "exact topic", topic: "Yosef", want: []string{"bitachon", "shabbos"}},
		{name: "topic is case sensitive", topic: "yosef", want: []string{}},
		{name: "to includes whole day", to: "2024-05-03", want: []string{"bitachon", "shabbos", "tefillah"}},
		{name: "from", from: "2024-05-02", want: []string{"bitachon", "shabbos"}},
		{name: "range", from: "2024-05-01", to: "2024-05-02", want: []string{"shabbos"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFilter(tt.q, tt.topic, tt.from, tt.to, time.UTC)
			if err != nil {
				t.Fatalf("ParseFilter: %v", err)
			}
			got := slugs(f.Apply(sample))
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestParseFilterRejectsBadDates(t *testing.T) {
	if _, err := ParseFilter("", "", "05/01/2024", "", nil); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestTopics(t *testing.T) {
	got := Topics(sample)
	if len(got) != 2 || got[0] != "Muktzeh" || got[1] != "Yosef" {
		t.Errorf("unexpected topics %v", got)
	}
}

func TestCatalogCachesUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	st, err := filestore.NewStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	c := New(st, cache.NewMockRedisClient(), time.Minute)

	for i := range sample {
		s := sample[i]
		if _, err := st.Shiurim().Create(ctx, s.Columns()); err != nil {
			t.Fatal(err)
		}
	}

	list, err := c.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := slugs(list); len(got) != 3 || got[0] != "bitachon" || got[2] != "tefillah" {
		t.Fatalf("expected newest first, got %v", got)
	}

	if _, err := st.Shiurim().Create(ctx, (&models.Shiur{Slug: "new", Title: "New", CreatedAt: day("2024-06-01T00:00:00Z")}).Columns()); err != nil {
		t.Fatal(err)
	}
	if list, _ := c.All(ctx); len(list) != 3 {
		t.Errorf("expected cached list of 3, got %d", len(list))
	}

	c.Invalidate(ctx)
	list, _ = c.Search(ctx, Filter{})
	if len(list) != 4 || list[0].Slug != "new" {
		t.Errorf("expected fresh list after invalidation, got %v", slugs(list))
	}
}
