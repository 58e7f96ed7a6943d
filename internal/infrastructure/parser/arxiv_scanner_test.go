package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"arxivalert/internal/scanner"
)

func TestBuildPageURL(t *testing.T) {
	t.Parallel()

	base := "https://export.arxiv.org/list/cs.AI/pastweek"
	u, err := buildPageURL(base, 200, 100)
	if err != nil {
		t.Fatalf("buildPageURL returned error: %v", err)
	}

	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}

	if parsed.Scheme != "https" || parsed.Host != "export.arxiv.org" {
		t.Fatalf("unexpected host: %s", parsed.Host)
	}

	q := parsed.Query()
	if q.Get("skip") != "200" {
		t.Fatalf("expected skip=200, got %s", q.Get("skip"))
	}
	if q.Get("show") != "100" {
		t.Fatalf("expected show=100, got %s", q.Get("show"))
	}
}

func TestParseEntry(t *testing.T) {
	t.Parallel()

	html := `
	<dl>
	  <dt>
	    <span class="list-identifier"><a href="/abs/1234.56789">arXiv:1234.56789</a></span>
	  </dt>
	  <dd>
	    <div class="list-date">Date: 8 Nov 2025</div>
	    <div class="list-title mathjax">Title: Sample Title</div>
	    <div class="list-authors"><a href="#">Jane Doe</a>, <a href="#">John Roe</a></div>
	    <div class="list-subjects">Subjects: Artificial Intelligence (cs.AI); Machine Learning (cs.LG)</div>
	    <p class="mathjax">Abstract: Sample abstract text.</p>
	  </dd>
	</dl>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	dt := doc.Find("dt").First()
	dd := doc.Find("dd").First()

	paper, publishedAt, err := parseEntry(dt, dd, "arxiv-ai", "cs.AI")
	if err != nil {
		t.Fatalf("parseEntry error: %v", err)
	}

	if paper.ID != "1234.56789" {
		t.Fatalf("unexpected id: %s", paper.ID)
	}
	if paper.Title != "Sample Title" {
		t.Fatalf("unexpected title: %s", paper.Title)
	}
	if paper.Abstract != "Sample abstract text." {
		t.Fatalf("unexpected abstract: %s", paper.Abstract)
	}
	if len(paper.Authors) != 2 || paper.Authors[0] != "Jane Doe" {
		t.Fatalf("unexpected authors: %v", paper.Authors)
	}
	if len(paper.Categories) != 2 || paper.Categories[0] != "cs.AI" || paper.Categories[1] != "cs.LG" {
		t.Fatalf("unexpected categories: %v", paper.Categories)
	}
	if paper.Source != "arxiv-ai/cs.AI" {
		t.Fatalf("unexpected source: %s", paper.Source)
	}

	wantDate := time.Date(2025, time.November, 8, 0, 0, 0, 0, time.UTC)
	if publishedAt.Format("2006-01-02") != wantDate.Format("2006-01-02") {
		t.Fatalf("unexpected published date: %v", publishedAt)
	}
}

func TestParseEntryFallbackCategory(t *testing.T) {
	t.Parallel()

	html := `
	<dl>
	  <dt><span class="list-identifier"><a href="/abs/2501.11111">arXiv:2501.11111</a></span></dt>
	  <dd>
	    <div class="list-date">Date: 8 Nov 2025</div>
	    <div class="list-title mathjax">Title: No Subjects Line</div>
	    <p class="mathjax">Abstract: text.</p>
	  </dd>
	</dl>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	paper, _, err := parseEntry(doc.Find("dt").First(), doc.Find("dd").First(), "arxiv-ai", "cs.AI")
	if err != nil {
		t.Fatalf("parseEntry error: %v", err)
	}
	if len(paper.Categories) != 1 || paper.Categories[0] != "cs.AI" {
		t.Fatalf("expected fallback to request category, got %v", paper.Categories)
	}
}

func TestArxivScannerScan(t *testing.T) {
	t.Parallel()

	targetDay := time.Date(2025, time.November, 8, 0, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`
		<dl>
		  <dt>
		    <span class="list-identifier"><a href="/abs/2501.00001">arXiv:2501.00001</a></span>
		  </dt>
		  <dd>
		    <div class="list-date">Date: 8 Nov 2025</div>
		    <div class="list-title mathjax">Title: Fresh Paper</div>
		    <p class="mathjax">Abstract: brand new.</p>
		  </dd>
		  <dt>
		    <span class="list-identifier"><a href="/abs/2501.00002">arXiv:2501.00002</a></span>
		  </dt>
		  <dd>
		    <div class="list-date">Date: 7 Nov 2025</div>
		    <div class="list-title mathjax">Title: Old Paper</div>
		    <p class="mathjax">Abstract: older.</p>
		  </dd>
		</dl>`))
	}))
	defer server.Close()

	client := server.Client()
	sc := NewArxivScanner(client)
	sc.pageSize = 10

	req := scanner.Request{
		Day:      targetDay,
		SiteName: "arxiv-ai",
		Categories: []scanner.Category{
			{Name: "cs.AI", URL: server.URL + "/list/cs.AI"},
		},
	}

	ctx := context.Background()
	papers, err := sc.Scan(ctx, req)
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}

	if len(papers) != 1 {
		t.Fatalf("expected 1 paper, got %d", len(papers))
	}

	if papers[0].ID != "2501.00001" {
		t.Fatalf("unexpected paper id: %s", papers[0].ID)
	}
	if papers[0].Abstract != "brand new." {
		t.Fatalf("unexpected abstract: %s", papers[0].Abstract)
	}
}
