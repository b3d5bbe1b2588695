package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"lpgateway/internal/config"
	"lpgateway/internal/fault"
)

const opIndex = "list positions"

// positionsQuery pages by entity id; each page starts after the last id seen.
const positionsQuery = `query Positions($owner: String!, $first: Int!, $after: String!) {
  positions(where: {owner: $owner, id_gt: $after}, first: $first, orderBy: id, orderDirection: asc) {
    id
    tokenId
  }
}`

// maxPages bounds one listing so a misbehaving index cannot loop forever.
const maxPages = 100

// Client queries the per-chain position ownership index.
type Client struct {
	registry   *config.ChainRegistry
	httpClient *http.Client
	pageSize   int
	logger     *zap.Logger
}

type positionRecord struct {
	ID      string `json:"id"`
	TokenID string `json:"tokenId"`
}

func NewClient(registry *config.ChainRegistry, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		registry:   registry,
		httpClient: &http.Client{Timeout: timeout},
		pageSize:   100,
		logger:     logger,
	}
}

type graphRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type graphResponse struct {
	Data struct {
		Positions []positionRecord `json:"positions"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// TokenIDs returns the position token ids owned by owner on chainID, ascending.
func (c *Client) TokenIDs(ctx context.Context, chainID uint64, owner common.Address) ([]*big.Int, error) {
	chainCfg, ok := c.registry.Get(chainID)
	if !ok {
		return nil, fault.NotFound(opIndex, "chain %d is not supported", chainID)
	}
	if chainCfg.IndexURL == "" {
		return nil, fault.NotFound(opIndex, "chain %d has no position index", chainID)
	}

	ids := make([]*big.Int, 0)
	after := ""
	for page := 0; ; page++ {
		if page == maxPages {
			c.logger.Warn("position listing truncated",
				zap.Uint64("chain_id", chainID),
				zap.String("owner", owner.Hex()),
				zap.Int("positions", len(ids)))
			break
		}
		records, err := c.fetchPage(ctx, chainCfg.IndexURL, chainID, owner, after)
		if err != nil {
			return nil, err
		}
		for _, p := range records {
			id, ok := new(big.Int).SetString(p.TokenID, 10)
			if !ok {
				c.logger.Warn("skip malformed token id", zap.Uint64("chain_id", chainID), zap.String("token_id", p.TokenID))
				continue
			}
			ids = append(ids, id)
		}
		if len(records) < c.pageSize || records[len(records)-1].ID == "" {
			break
		}
		after = records[len(records)-1].ID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Cmp(ids[j]) < 0 })
	return ids, nil
}

func (c *Client) fetchPage(ctx context.Context, indexURL string, chainID uint64, owner common.Address, after string) ([]positionRecord, error) {
	body, err := json.Marshal(graphRequest{
		Query: positionsQuery,
		Variables: map[string]interface{}{
			"owner": strings.ToLower(owner.Hex()),
			"first": c.pageSize,
			"after": after,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, indexURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fault.Wrap(fault.KindTransient, opIndex, chainID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fault.Wrap(fault.KindTransient, opIndex, chainID, fmt.Errorf("index query failed with status: %d", resp.StatusCode))
	}

	var out graphResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fault.Wrap(fault.KindTransient, opIndex, chainID, fmt.Errorf("decode index response: %w", err))
	}
	if len(out.Errors) > 0 {
		return nil, fault.Wrap(fault.KindTransient, opIndex, chainID, fmt.Errorf("index query errors: %s", out.Errors[0].Message))
	}
	return out.Data.Positions, nil
}
