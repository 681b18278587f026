package usecase

import (
	"context"
	"maps"

	"github.com/secmon-lab/tributary/pkg/domain/model"
	"github.com/secmon-lab/tributary/pkg/domain/types"
	"github.com/secmon-lab/tributary/pkg/service/confluence"
)

const confluencePageType = "page"

func (uc *SyncUseCase) syncConfluence(ctx context.Context, run *syncRun) bool {
	if run.conn.AccountEmail == "" || run.conn.SiteURL == "" {
		run.fail(ctx, nil, "Confluence requires both a site URL and an account email")
		return false
	}
	client, err := uc.factory.Confluence(run.conn)
	if err != nil {
		run.fail(ctx, err, "Invalid Confluence configuration")
		return false
	}
	if !client.TestConnection(ctx) {
		run.fail(ctx, nil, "Failed to connect to %s", types.PlatformConfluence.DisplayName())
		return false
	}

	var keys []string
	if run.conn.SpaceKey != "" {
		keys = append(keys, run.conn.SpaceKey)
	}
	spaces, err := client.ListSpaces(ctx, keys...)
	if err != nil {
		run.fail(ctx, err, "Failed to list Confluence spaces")
		return false
	}

	// pages_synced is reported for Confluence even when nothing was written
	run.result.AddPages(0)
	for _, space := range spaces {
		if ctx.Err() != nil {
			return false
		}
		if !run.opts.AllowsContainer(space.ID, space.Key, space.Name) {
			continue
		}
		uc.syncConfluenceSpace(ctx, run, client, space)
	}

	return run.opts.IsFullSweep()
}

func (uc *SyncUseCase) syncConfluenceSpace(ctx context.Context, run *syncRun, client confluence.Service, space *confluence.Space) {
	roots, err := client.GetPageHierarchy(ctx, space.ID)
	if err != nil {
		run.fail(ctx, err, "Failed to sync pages for space %s", space.Key)
		return
	}

	confluence.Walk(roots, func(node *confluence.PageNode, parentID *string) bool {
		if ctx.Err() != nil {
			return false
		}
		page := translateConfluencePage(run, space, node.Page, parentID)
		if err := uc.repo.Page().Upsert(ctx, page); err != nil {
			run.fail(ctx, err, "Failed to save page %s", page.ExternalID)
			// descendants are still written; their parent ID does not depend on this row
			return true
		}
		run.result.AddPages(1)
		run.seen = append(run.seen, page.ExternalID)
		return true
	})
}

func translateConfluencePage(run *syncRun, space *confluence.Space, p *confluence.Page, parentID *string) *model.ConfluencePage {
	page := &model.ConfluencePage{
		ConnectionID: run.conn.ID,
		ExternalID:   p.ID,
		Type:         confluencePageType,
		Status:       p.Status,
		Title:        p.Title,
		Content:      p.Content(),
		SpaceID:      space.ID,
		SpaceKey:     space.Key,
		SpaceName:    space.Name,
		ParentID:     parentID,
		Position:     p.Position,
		AuthorID:     p.AuthorID,
		OwnerID:      p.OwnerID,
		CreatedDate:  p.CreatedAt,
		URL:          confluence.PageURL(run.conn.SiteURL, p),
		Metadata:     pageMetadata(p),
		LastSyncedAt: run.syncedAt,
	}
	if p.Version != nil {
		page.VersionNumber = p.Version.Number
		page.VersionMessage = p.Version.Message
		page.UpdatedDate = p.Version.CreatedAt
	}
	return page
}

// pageMetadata is the native page record without the storage body, which is kept in Content
func pageMetadata(p *confluence.Page) map[string]any {
	md := maps.Clone(p.Raw)
	delete(md, "body")
	return md
}
