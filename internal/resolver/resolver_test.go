package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ServanKorkmaz/mail-automation/internal/retry"
	"github.com/ServanKorkmaz/mail-automation/internal/school"
)

type mockSearcher struct {
	mock.Mock
}

func (m *mockSearcher) Search(ctx context.Context, query string) ([]string, error) {
	args := m.Called(ctx, query)
	urls, _ := args.Get(0).([]string)
	return urls, args.Error(1)
}

type recordingApplier struct {
	mu      sync.Mutex
	applied map[string]school.Record
	err     error
}

func (a *recordingApplier) Apply(_ context.Context, rec school.Record) (school.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return school.Record{}, a.err
	}
	if a.applied == nil {
		a.applied = make(map[string]school.Record)
	}
	a.applied[rec.Name] = rec
	return rec, nil
}

func fastPolicy() retry.Policy {
	return retry.NewExponentialPolicy(retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
}

func TestQuery(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `"Kadıköy Ortaokulu" resmi web sitesi`, Query("  Kadıköy   Ortaokulu ", DefaultQualifier))
	assert.Equal(t, `"Alpha School"`, Query("Alpha School", ""))
}

func TestSelect(t *testing.T) {
	t.Parallel()

	r := New(nil, nil, nil, Config{}, nil)
	tests := []struct {
		name       string
		candidates []string
		want       string
		ok         bool
	}{
		{
			name:       "preferred suffix wins over earlier candidate",
			candidates: []string{"https://alphaschool.com/", "https://alpha.meb.k12.tr/"},
			want:       "https://alpha.meb.k12.tr/",
			ok:         true,
		},
		{
			name:       "blocked hosts are skipped",
			candidates: []string{"https://www.okul.com.tr/okul/alpha", "https://m.facebook.com/alpha", "https://alphaschool.com/"},
			want:       "https://alphaschool.com/",
			ok:         true,
		},
		{
			name:       "blocked even on official-looking path",
			candidates: []string{"https://tr.wikipedia.org/wiki/Alpha.k12.tr"},
			ok:         false,
		},
		{
			name:       "invalid schemes and relative urls rejected",
			candidates: []string{"ftp://alpha.k12.tr", "/relative", "mailto:info@alpha.k12.tr", "https://"},
			ok:         false,
		},
		{
			name:       "suffix must match on a label boundary",
			candidates: []string{"https://notk12.tr.example.com/", "https://beta.bel.tr/"},
			want:       "https://beta.bel.tr/",
			ok:         true,
		},
		{
			name: "empty",
			ok:   false,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := r.Select(tt.candidates)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectWithConfiguredBlocklist(t *testing.T) {
	t.Parallel()

	r := New(nil, nil, nil, Config{Blocklist: []string{"directory-site.example", "*.aggregator.example"}}, nil)
	tests := []struct {
		name       string
		candidates []string
		want       string
		ok         bool
	}{
		{
			name:       "directory site skipped for the school's own site",
			candidates: []string{"https://directory-site.example/schools/alpha", "https://school-actual.example"},
			want:       "https://school-actual.example",
			ok:         true,
		},
		{
			name:       "wildcard entry blocks subdomains",
			candidates: []string{"https://list.aggregator.example/alpha", "https://school-actual.example/"},
			want:       "https://school-actual.example/",
			ok:         true,
		},
		{
			name:       "only blocked candidates",
			candidates: []string{"https://directory-site.example/alpha"},
			ok:         false,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := r.Select(tt.candidates)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBlocklistPatterns(t *testing.T) {
	t.Parallel()

	b := newDomainPatternBlocklist([]string{"Example.com", "*.okul.com.tr", ".x.com", " "})
	assert.True(t, b.IsBlocked("example.com"))
	assert.False(t, b.IsBlocked("www.example.com"))
	assert.True(t, b.IsBlocked("okul.com.tr"))
	assert.True(t, b.IsBlocked("www.okul.com.tr"))
	assert.True(t, b.IsBlocked("x.com."))
	assert.False(t, b.IsBlocked("box.com"))
	assert.Nil(t, newDomainPatternBlocklist(nil))
	assert.False(t, (*domainPatternBlocklist)(nil).IsBlocked("example.com"))
}

func TestResolveAppliesWebsitesAndSentinels(t *testing.T) {
	t.Parallel()

	searcher := &mockSearcher{}
	searcher.On("Search", mock.Anything, `"Alpha School" resmi web sitesi`).
		Return([]string{"https://www.facebook.com/alpha", "https://alpha.k12.tr/"}, nil).Once()
	searcher.On("Search", mock.Anything, `"Beta School" resmi web sitesi`).
		Return([]string{"https://www.okul.com.tr/beta"}, nil).Once()

	applier := &recordingApplier{}
	r := New(searcher, applier, fastPolicy(), Config{}, nil)

	summary, err := r.Resolve(context.Background(), []school.Record{
		{Name: "Alpha School"},
		{Name: "Beta School"},
		{Name: "Gamma School", Website: "https://gamma.k12.tr"},
		{Name: "Delta School", Website: school.WebsiteUnknown},
	})
	require.NoError(t, err)
	assert.Equal(t, Summary{Resolved: 1, Unknown: 1}, summary)
	assert.Equal(t, "https://alpha.k12.tr/", applier.applied["Alpha School"].Website)
	assert.Equal(t, school.WebsiteUnknown, applier.applied["Beta School"].Website)
	assert.NotContains(t, applier.applied, "Gamma School")
	assert.NotContains(t, applier.applied, "Delta School")
	searcher.AssertExpectations(t)
}

func TestResolveRetriesThenLeavesEmpty(t *testing.T) {
	t.Parallel()

	searcher := &mockSearcher{}
	searcher.On("Search", mock.Anything, mock.Anything).
		Return(nil, school.Transient(errors.New("quota"))).Times(3)

	applier := &recordingApplier{}
	r := New(searcher, applier, fastPolicy(), Config{}, nil)

	summary, err := r.Resolve(context.Background(), []school.Record{{Name: "Alpha School"}})
	require.NoError(t, err)
	assert.Equal(t, Summary{Failed: 1}, summary)
	assert.Empty(t, applier.applied)
	searcher.AssertNumberOfCalls(t, "Search", 3)
}

func TestResolvePersistErrorIsFatal(t *testing.T) {
	t.Parallel()

	searcher := &mockSearcher{}
	searcher.On("Search", mock.Anything, mock.Anything).Return([]string{"https://alpha.k12.tr"}, nil)

	diskFull := errors.New("disk full")
	r := New(searcher, &recordingApplier{err: diskFull}, fastPolicy(), Config{}, nil)

	_, err := r.Resolve(context.Background(), []school.Record{{Name: "Alpha School"}, {Name: "Beta School"}})
	require.ErrorIs(t, err, diskFull)
}

func TestResolveBoundsConcurrency(t *testing.T) {
	t.Parallel()

	searcher := &concurrencySearcher{}
	r := New(searcher, &recordingApplier{}, fastPolicy(), Config{Concurrency: 2}, nil)

	var records []school.Record
	for _, name := range []string{"A School", "B School", "C School", "D School", "E School", "F School"} {
		records = append(records, school.Record{Name: name})
	}
	summary, err := r.Resolve(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 6, summary.Unknown)
	assert.LessOrEqual(t, searcher.peak, 2)
}

type concurrencySearcher struct {
	mu      sync.Mutex
	current int
	peak    int
}

func (s *concurrencySearcher) Search(context.Context, string) ([]string, error) {
	s.mu.Lock()
	s.current++
	if s.current > s.peak {
		s.peak = s.current
	}
	s.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	s.mu.Lock()
	s.current--
	s.mu.Unlock()
	return nil, nil
}
