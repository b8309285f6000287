package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/Skotchmaster/staff_api/internal/models"
)

const DefaultIndex = "positions"

type Config struct {
	URL      string
	Username string
	Password string
	Index    string
}

// PositionIndex keeps a searchable copy of positions. The database stays the
// source of truth: search returns ids only.
type PositionIndex struct {
	es    *elasticsearch.Client
	index string
}

type positionDoc struct {
	PositionID   uint   `json:"position_id"`
	PositionCode string `json:"position_code"`
	PositionName string `json:"position_name"`
	UserID       uint   `json:"user_id"`
}

func NewClient(cfg Config) (*elasticsearch.Client, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: new client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: info: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, responseError("info", res.Status(), res.Body)
	}
	return client, nil
}

func NewPositionIndex(es *elasticsearch.Client, index string) *PositionIndex {
	if index == "" {
		index = DefaultIndex
	}
	return &PositionIndex{es: es, index: index}
}

// Open connects to the cluster described by cfg and binds cfg.Index.
func Open(cfg Config) (*PositionIndex, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewPositionIndex(client, cfg.Index), nil
}

func (p *PositionIndex) IndexPosition(ctx context.Context, pos models.Position) error {
	body, err := json.Marshal(positionDoc{
		PositionID:   pos.PositionID,
		PositionCode: pos.PositionCode,
		PositionName: pos.PositionName,
		UserID:       pos.UserID,
	})
	if err != nil {
		return err
	}

	res, err := p.es.Index(
		p.index,
		bytes.NewReader(body),
		p.es.Index.WithContext(ctx),
		p.es.Index.WithDocumentID(docID(pos.PositionID)),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch: index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("index", res.Status(), res.Body)
	}
	return nil
}

func (p *PositionIndex) DeletePosition(ctx context.Context, id uint) error {
	res, err := p.es.Delete(p.index, docID(id), p.es.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch: delete: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		return responseError("delete", res.Status(), res.Body)
	}
	return nil
}

// SearchPositions returns the total hit count and the ids of one page of hits.
func (p *PositionIndex) SearchPositions(ctx context.Context, query string, from, size int) (int64, []uint, error) {
	body := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":     query,
				"fields":    []string{"position_name^2", "position_code"},
				"fuzziness": "AUTO",
			},
		},
		"from":    from,
		"size":    size,
		"_source": []string{"position_id"},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return 0, nil, err
	}

	res, err := p.es.Search(
		p.es.Search.WithContext(ctx),
		p.es.Search.WithIndex(p.index),
		p.es.Search.WithBody(&buf),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("elasticsearch: search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, nil, responseError("search", res.Status(), res.Body)
	}

	var r struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source positionDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0, nil, fmt.Errorf("elasticsearch: decode: %w", err)
	}

	ids := make([]uint, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		ids = append(ids, hit.Source.PositionID)
	}
	return r.Hits.Total.Value, ids, nil
}

func docID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func responseError(op, status string, body io.Reader) error {
	msg, _ := io.ReadAll(io.LimitReader(body, 512))
	return fmt.Errorf("elasticsearch: %s: %s: %s", op, status, bytes.TrimSpace(msg))
}
