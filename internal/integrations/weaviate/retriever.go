// Package weaviate adapts a Weaviate class of chunked medical documents to
// the retriever used by the agent.
package weaviate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	wv "github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

const (
	defaultTextProperty = "content"
	defaultLimit        = 4
)

// searcher runs a nearText GraphQL Get query. *graphqlSearcher is the
// production implementation.
type searcher interface {
	NearText(ctx context.Context, class string, fields []graphql.Field, concept string, limit int) (*models.GraphQLResponse, error)
}

type graphqlSearcher struct {
	client *wv.Client
}

func (s *graphqlSearcher) NearText(ctx context.Context, class string, fields []graphql.Field, concept string, limit int) (*models.GraphQLResponse, error) {
	nearText := s.client.GraphQL().
		NearTextArgBuilder().
		WithConcepts([]string{concept})

	return s.client.GraphQL().Get().
		WithClassName(class).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(limit).
		Do(ctx)
}

// Retriever returns the text of the documents closest to a query, best
// match first.
type Retriever struct {
	search   searcher
	class    string
	property string
	limit    int
}

type Option func(*Retriever)

// WithTextProperty names the property holding chunk text.
func WithTextProperty(name string) Option {
	return func(r *Retriever) {
		if name = strings.TrimSpace(name); name != "" {
			r.property = name
		}
	}
}

func WithLimit(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.limit = n
		}
	}
}

// NewClient connects to a Weaviate instance at scheme://host.
func NewClient(scheme, host string) (*wv.Client, error) {
	if strings.TrimSpace(host) == "" {
		return nil, errors.New("weaviate: host must not be empty")
	}
	if scheme == "" {
		scheme = "http"
	}
	client, err := wv.NewClient(wv.Config{Scheme: scheme, Host: host})
	if err != nil {
		return nil, fmt.Errorf("weaviate: create client: %w", err)
	}
	return client, nil
}

// New returns a Retriever over class.
func New(client *wv.Client, class string, opts ...Option) (*Retriever, error) {
	if client == nil {
		return nil, errors.New("weaviate: client must not be nil")
	}
	return newRetriever(&graphqlSearcher{client: client}, class, opts...)
}

func newRetriever(s searcher, class string, opts ...Option) (*Retriever, error) {
	class = strings.TrimSpace(class)
	if class == "" {
		return nil, errors.New("weaviate: class name must not be empty")
	}
	r := &Retriever{
		search:   s,
		class:    class,
		property: defaultTextProperty,
		limit:    defaultLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Retrieve runs a nearText search for query.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	resp, err := r.search.NearText(ctx, r.class, []graphql.Field{{Name: r.property}}, query, r.limit)
	if err != nil {
		return nil, fmt.Errorf("weaviate: Retrieve query: %w", err)
	}
	return documentsFromResponse(resp, r.class, r.property)
}

func documentsFromResponse(resp *models.GraphQLResponse, class, property string) ([]string, error) {
	if resp == nil {
		return nil, nil
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			if e != nil {
				msgs = append(msgs, e.Message)
			}
		}
		return nil, fmt.Errorf("weaviate: graphql errors: %s", strings.Join(msgs, "; "))
	}

	get, ok := resp.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	items, ok := get[class].([]interface{})
	if !ok {
		return nil, nil
	}

	docs := make([]string, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		text, _ := obj[property].(string)
		if text = strings.TrimSpace(text); text != "" {
			docs = append(docs, text)
		}
	}
	return docs, nil
}
