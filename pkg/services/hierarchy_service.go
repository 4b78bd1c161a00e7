package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-adsync/pkg/cache"
	"github.com/ekaya-inc/ekaya-adsync/pkg/country"
	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
	"github.com/ekaya-inc/ekaya-adsync/pkg/repositories"
	"github.com/ekaya-inc/ekaya-adsync/pkg/telemetry"
)

const (
	DefaultHierarchyTTL = 60 * time.Second
	DefaultCountriesTTL = 5 * time.Minute

	countriesCacheKey = "countries"
)

// HierarchyService assembles the campaign tree shown on the dashboard.
type HierarchyService interface {
	GetHierarchy(ctx context.Context, filter models.HierarchyFilter) (*models.Hierarchy, error)

	// GetAvailableCountries lists every country code found in any
	// campaign, ad set or ad name, sorted.
	GetAvailableCountries(ctx context.Context) ([]string, error)

	// Invalidate drops both caches in every tier.
	Invalidate()
}

type hierarchyService struct {
	campaigns repositories.CampaignRepository
	adSets    repositories.AdSetRepository
	ads       repositories.AdRepository
	daily     repositories.DailyInsightRepository
	leads     repositories.LeadRepository

	trees     *cache.TTL[string, *models.Hierarchy]
	countries *cache.TTL[string, []string]
	shared    *cache.RedisStore
	metrics   *telemetry.Metrics
	logger    *zap.Logger
}

// NewHierarchyService builds the service. shared may be nil, in which case
// only the in-process tier is used.
func NewHierarchyService(
	campaigns repositories.CampaignRepository,
	adSets repositories.AdSetRepository,
	ads repositories.AdRepository,
	daily repositories.DailyInsightRepository,
	leads repositories.LeadRepository,
	shared *cache.RedisStore,
	treeTTL, countriesTTL time.Duration,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) HierarchyService {
	if treeTTL <= 0 {
		treeTTL = DefaultHierarchyTTL
	}
	if countriesTTL <= 0 {
		countriesTTL = DefaultCountriesTTL
	}
	return &hierarchyService{
		campaigns: campaigns,
		adSets:    adSets,
		ads:       ads,
		daily:     daily,
		leads:     leads,
		trees:     cache.NewTTL[string, *models.Hierarchy](treeTTL),
		countries: cache.NewTTL[string, []string](countriesTTL),
		shared:    shared,
		metrics:   metrics,
		logger:    logger.Named("hierarchy-service"),
	}
}

var _ HierarchyService = (*hierarchyService)(nil)

func (s *hierarchyService) Invalidate() {
	s.trees.Invalidate()
	s.countries.Invalidate()
	if s.shared != nil {
		if err := s.shared.Invalidate(context.Background()); err != nil {
			s.logger.Warn("Failed to invalidate shared cache", zap.Error(err))
		}
	}
}

func (s *hierarchyService) GetHierarchy(ctx context.Context, filter models.HierarchyFilter) (*models.Hierarchy, error) {
	key := filter.CacheKey()
	if h, ok := s.trees.Get(key); ok {
		s.metrics.CacheLookup("hierarchy", true)
		return h, nil
	}
	if s.shared != nil {
		var h models.Hierarchy
		if ok, err := s.shared.GetJSON(ctx, key, &h); err != nil {
			s.logger.Warn("Shared hierarchy cache read failed", zap.Error(err))
		} else if ok {
			s.metrics.CacheLookup("hierarchy", true)
			s.trees.Set(key, &h)
			return &h, nil
		}
	}
	s.metrics.CacheLookup("hierarchy", false)

	h, err := s.build(ctx, filter)
	if err != nil {
		return nil, err
	}

	s.trees.Set(key, h)
	if s.shared != nil {
		if err := s.shared.SetJSON(ctx, key, h, s.trees.TTL()); err != nil {
			s.logger.Warn("Shared hierarchy cache write failed", zap.Error(err))
		}
	}
	return h, nil
}

type hierarchyRows struct {
	campaigns []*models.Campaign
	adSets    []*models.AdSet
	ads       []*models.Ad
	daily     []*models.DailyInsight
	formLeads map[string]int
}

func (s *hierarchyService) load(ctx context.Context, filter models.HierarchyFilter) (*hierarchyRows, error) {
	var rows hierarchyRows
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		rows.campaigns, err = s.campaigns.List(gctx, repositories.ListFilter{AdAccountID: filter.AdAccountID, Search: filter.Search})
		return err
	})
	g.Go(func() error {
		var err error
		rows.adSets, err = s.adSets.List(gctx, repositories.ListFilter{AdAccountID: filter.AdAccountID})
		return err
	})
	g.Go(func() error {
		var err error
		rows.ads, err = s.ads.List(gctx, repositories.ListFilter{AdAccountID: filter.AdAccountID})
		return err
	})
	if filter.DateRange != nil {
		g.Go(func() error {
			var err error
			rows.daily, err = s.daily.ListInRange(gctx, *filter.DateRange, filter.AdAccountID)
			return err
		})
	}
	g.Go(func() error {
		var err error
		rows.formLeads, err = s.leads.FormLeadCounts(gctx, filter.DateRange)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load hierarchy: %w", err)
	}
	return &rows, nil
}

type metricSum struct {
	spend float64
	leads int
}

func (m *metricSum) add(o metricSum) {
	m.spend += o.spend
	m.leads += o.leads
}

// dailyAggregates sums in-range daily rows per level and id.
type dailyAggregates struct {
	campaigns map[string]metricSum
	adSets    map[string]metricSum
	ads       map[string]metricSum
}

func aggregateDaily(rows []*models.DailyInsight) dailyAggregates {
	agg := dailyAggregates{
		campaigns: map[string]metricSum{},
		adSets:    map[string]metricSum{},
		ads:       map[string]metricSum{},
	}
	for _, d := range rows {
		var target map[string]metricSum
		var id string
		switch d.Level() {
		case models.LevelAd:
			target, id = agg.ads, d.AdID
		case models.LevelAdSet:
			target, id = agg.adSets, d.AdSetID
		default:
			target, id = agg.campaigns, d.CampaignID
		}
		m := target[id]
		m.add(metricSum{spend: d.SpendUSD, leads: d.LeadsCount})
		target[id] = m
	}
	return agg
}

func (s *hierarchyService) build(ctx context.Context, filter models.HierarchyFilter) (*models.Hierarchy, error) {
	rows, err := s.load(ctx, filter)
	if err != nil {
		return nil, err
	}

	var agg *dailyAggregates
	if filter.DateRange != nil {
		a := aggregateDaily(rows.daily)
		agg = &a
	}

	adsBySet := make(map[string][]*models.AdNode)
	for _, ad := range rows.ads {
		platform := metricSum{spend: ad.SpendUSD, leads: ad.InsightsLeadsCount}
		if agg != nil {
			platform = agg.ads[ad.AdID]
		}
		adsBySet[ad.AdSetID] = append(adsBySet[ad.AdSetID], &models.AdNode{
			AdID:        ad.AdID,
			Name:        ad.Name,
			Status:      ad.Status,
			AdSetID:     ad.AdSetID,
			CampaignID:  ad.CampaignID,
			NodeMetrics: platformMetrics(platform),
			Countries:   country.Parse(ad.Name),
		})
	}

	setsByCampaign := make(map[string][]*models.AdSetNode)
	for _, set := range rows.adSets {
		children := adsBySet[set.AdSetID]
		if children == nil {
			children = []*models.AdNode{}
		}

		platform := metricSum{spend: set.SpendUSD, leads: set.InsightsLeadsCount}
		if agg != nil {
			var ok bool
			if platform, ok = agg.adSets[set.AdSetID]; !ok {
				platform = metricSum{}
				for _, ad := range children {
					platform.add(metricSum{spend: ad.SpendUSD, leads: ad.PlatformLeads})
				}
			}
		}

		direct := country.Parse(set.Name)
		childTags := make([][]string, 0, len(children))
		for _, ad := range children {
			childTags = append(childTags, ad.Countries)
		}
		setsByCampaign[set.CampaignID] = append(setsByCampaign[set.CampaignID], &models.AdSetNode{
			AdSetID:          set.AdSetID,
			Name:             set.Name,
			Status:           set.Status,
			OptimizationGoal: set.OptimizationGoal,
			CampaignID:       set.CampaignID,
			NodeMetrics:      platformMetrics(platform),
			Countries:        inheritCountries(direct, childTags),
			Ads:              children,
			DirectCountries:  direct,
		})
	}

	campaigns := make([]*models.CampaignNode, 0, len(rows.campaigns))
	for _, c := range rows.campaigns {
		children := setsByCampaign[c.CampaignID]
		if children == nil {
			children = []*models.AdSetNode{}
		}

		platform := metricSum{spend: c.SpendUSD, leads: c.InsightsLeadsCount}
		if agg != nil {
			var ok bool
			if platform, ok = agg.campaigns[c.CampaignID]; !ok {
				platform = metricSum{}
				for _, set := range children {
					platform.add(metricSum{spend: set.SpendUSD, leads: set.PlatformLeads})
				}
			}
		}

		metrics := platformMetrics(platform)
		metrics.FormLeads = rows.formLeads[c.CampaignID]
		if metrics.PlatformLeads == 0 {
			metrics.Leads = metrics.FormLeads
		}

		if agg != nil && metrics.SpendUSD == 0 && metrics.Leads == 0 {
			continue
		}

		direct := country.Parse(c.Name)
		childTags := make([][]string, 0, len(children))
		for _, set := range children {
			childTags = append(childTags, set.Countries)
		}
		campaigns = append(campaigns, &models.CampaignNode{
			CampaignID:      c.CampaignID,
			Name:            c.Name,
			Type:            c.Type,
			Status:          c.Status,
			AdAccountID:     c.AdAccountID,
			NodeMetrics:     metrics,
			Countries:       inheritCountries(direct, childTags),
			AdSets:          children,
			DirectCountries: direct,
		})
	}

	if filter.Country != "" {
		campaigns = filterCampaignsByCountry(campaigns, filter.Country)
	}
	campaigns = filterByLevel(campaigns, filter.Level)

	h := &models.Hierarchy{Campaigns: campaigns}
	h.Totals = totals(campaigns)
	return h, nil
}

func platformMetrics(m metricSum) models.NodeMetrics {
	return models.NodeMetrics{SpendUSD: m.spend, Leads: m.leads, PlatformLeads: m.leads}
}

// inheritCountries keeps a node's own tags, or falls back to the union of
// its children's tags when its name has none.
func inheritCountries(direct []string, children [][]string) []string {
	if len(direct) > 0 {
		return direct
	}
	return country.Union(children...)
}

// filterCampaignsByCountry keeps directly tagged nodes whole and prunes the
// rest down to their matching descendants.
func filterCampaignsByCountry(campaigns []*models.CampaignNode, code string) []*models.CampaignNode {
	out := make([]*models.CampaignNode, 0, len(campaigns))
	for _, c := range campaigns {
		if country.Contains(c.DirectCountries, code) {
			out = append(out, c)
			continue
		}
		var sets []*models.AdSetNode
		for _, set := range c.AdSets {
			if kept := filterAdSetByCountry(set, code); kept != nil {
				sets = append(sets, kept)
			}
		}
		if len(sets) == 0 {
			continue
		}
		cc := *c
		cc.AdSets = sets
		out = append(out, &cc)
	}
	return out
}

func filterAdSetByCountry(set *models.AdSetNode, code string) *models.AdSetNode {
	if country.Contains(set.DirectCountries, code) {
		return set
	}
	var ads []*models.AdNode
	for _, ad := range set.Ads {
		if country.Contains(ad.Countries, code) {
			ads = append(ads, ad)
		}
	}
	if len(ads) == 0 {
		return nil
	}
	sc := *set
	sc.Ads = ads
	return &sc
}

// filterByLevel drops campaigns that have nothing at the requested depth.
func filterByLevel(campaigns []*models.CampaignNode, level string) []*models.CampaignNode {
	switch level {
	case models.LevelAdSet:
		out := make([]*models.CampaignNode, 0, len(campaigns))
		for _, c := range campaigns {
			if len(c.AdSets) > 0 {
				out = append(out, c)
			}
		}
		return out
	case models.LevelAd:
		out := make([]*models.CampaignNode, 0, len(campaigns))
		for _, c := range campaigns {
			var sets []*models.AdSetNode
			for _, set := range c.AdSets {
				if len(set.Ads) > 0 {
					sets = append(sets, set)
				}
			}
			if len(sets) == 0 {
				continue
			}
			cc := *c
			cc.AdSets = sets
			out = append(out, &cc)
		}
		return out
	default:
		return campaigns
	}
}

func totals(campaigns []*models.CampaignNode) models.HierarchyTotals {
	var t models.HierarchyTotals
	for _, c := range campaigns {
		t.Campaigns++
		t.SpendUSD += c.SpendUSD
		t.Leads += c.Leads
		t.AdSets += len(c.AdSets)
		for _, set := range c.AdSets {
			t.Ads += len(set.Ads)
		}
	}
	return t
}

func (s *hierarchyService) GetAvailableCountries(ctx context.Context) ([]string, error) {
	if codes, ok := s.countries.Get(countriesCacheKey); ok {
		s.metrics.CacheLookup("countries", true)
		return codes, nil
	}
	if s.shared != nil {
		var codes []string
		if ok, err := s.shared.GetJSON(ctx, countriesCacheKey, &codes); err != nil {
			s.logger.Warn("Shared countries cache read failed", zap.Error(err))
		} else if ok {
			s.metrics.CacheLookup("countries", true)
			s.countries.Set(countriesCacheKey, codes)
			return codes, nil
		}
	}
	s.metrics.CacheLookup("countries", false)

	var names [3][]string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { names[0], err = s.campaigns.ListNames(gctx); return })
	g.Go(func() (err error) { names[1], err = s.adSets.ListNames(gctx); return })
	g.Go(func() (err error) { names[2], err = s.ads.ListNames(gctx); return })
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load names for countries: %w", err)
	}

	var found [][]string
	for _, group := range names {
		for _, name := range group {
			found = append(found, country.Parse(name))
		}
	}
	codes := country.Union(found...)
	sort.Strings(codes)

	s.countries.Set(countriesCacheKey, codes)
	if s.shared != nil {
		if err := s.shared.SetJSON(ctx, countriesCacheKey, codes, s.countries.TTL()); err != nil {
			s.logger.Warn("Shared countries cache write failed", zap.Error(err))
		}
	}
	return codes, nil
}
