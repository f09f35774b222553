package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"papertrade/internal/model"
)

// catalogFile is the on-disk YAML shape. Prices are dollars in the file
// and converted to cents on load.
type catalogFile struct {
	Instruments []struct {
		Symbol        string  `yaml:"symbol"`
		Name          string  `yaml:"name"`
		Sector        string  `yaml:"sector"`
		Price         float64 `yaml:"price"`
		PreviousClose float64 `yaml:"previous_close"`
		Volume        int64   `yaml:"volume"`
		MarketCap     float64 `yaml:"market_cap"`
		PERatio       float64 `yaml:"pe_ratio"`
		DividendYield float64 `yaml:"dividend_yield"`
	} `yaml:"instruments"`
	News []struct {
		ID             string   `yaml:"id"`
		Title          string   `yaml:"title"`
		Summary        string   `yaml:"summary"`
		Sentiment      string   `yaml:"sentiment"`
		Source         string   `yaml:"source"`
		PublishedAt    string   `yaml:"published_at"`
		RelatedSymbols []string `yaml:"related_symbols"`
	} `yaml:"news"`
}

// LoadCatalog reads the instrument universe and seed news from the YAML
// file at path.
func LoadCatalog(path string) ([]model.Instrument, []model.NewsItem, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(file.Instruments) == 0 {
		return nil, nil, fmt.Errorf("catalog %s lists no instruments", path)
	}

	seen := make(map[string]bool, len(file.Instruments))
	instruments := make([]model.Instrument, 0, len(file.Instruments))
	for i, in := range file.Instruments {
		if in.Symbol == "" {
			return nil, nil, fmt.Errorf("catalog instrument %d has no symbol", i)
		}
		if seen[in.Symbol] {
			return nil, nil, fmt.Errorf("catalog lists %s twice", in.Symbol)
		}
		seen[in.Symbol] = true
		if in.Price <= 0 {
			return nil, nil, fmt.Errorf("catalog %s has non-positive price %v", in.Symbol, in.Price)
		}
		prevClose := in.PreviousClose
		if prevClose <= 0 {
			prevClose = in.Price
		}
		instruments = append(instruments, model.Instrument{
			Symbol:        in.Symbol,
			Name:          in.Name,
			Sector:        in.Sector,
			CurrentPrice:  model.Cents(in.Price),
			PreviousClose: model.Cents(prevClose),
			Volume:        in.Volume,
			MarketCap:     model.Cents(in.MarketCap),
			PERatio:       in.PERatio,
			DividendYield: in.DividendYield,
		})
	}

	news := make([]model.NewsItem, 0, len(file.News))
	for i, n := range file.News {
		item := model.NewsItem{
			ID:             n.ID,
			Title:          n.Title,
			Summary:        n.Summary,
			Sentiment:      n.Sentiment,
			Source:         n.Source,
			RelatedSymbols: n.RelatedSymbols,
		}
		if item.ID == "" {
			item.ID = fmt.Sprintf("seed-%d", i+1)
		}
		switch item.Sentiment {
		case model.SentimentPositive, model.SentimentNegative, model.SentimentNeutral:
		case "":
			item.Sentiment = model.SentimentNeutral
		default:
			return nil, nil, fmt.Errorf("news %s has unknown sentiment %q", item.ID, n.Sentiment)
		}
		if n.PublishedAt != "" {
			ts, err := time.Parse(time.RFC3339, n.PublishedAt)
			if err != nil {
				return nil, nil, fmt.Errorf("news %s: bad published_at: %w", item.ID, err)
			}
			item.PublishedAt = ts
		} else {
			item.PublishedAt = time.Now().UTC()
		}
		news = append(news, item)
	}

	return instruments, news, nil
}
