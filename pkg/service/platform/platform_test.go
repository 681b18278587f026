package platform_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/tributary/pkg/domain/model"
	"github.com/secmon-lab/tributary/pkg/domain/types"
	"github.com/secmon-lab/tributary/pkg/service/asana"
	"github.com/secmon-lab/tributary/pkg/service/azuredevops"
	"github.com/secmon-lab/tributary/pkg/service/confluence"
	"github.com/secmon-lab/tributary/pkg/service/platform"
)

func TestClients(t *testing.T) {
	var uas []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uas = append(uas, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"data":{},"results":[],"value":[]}`))
	}))
	defer srv.Close()

	f := platform.New(
		platform.WithHTTPClient(srv.Client()),
		platform.WithUserAgent("tributary-test"),
		platform.WithAsanaBaseURL(srv.URL),
	)
	ctx := context.Background()

	ado, err := f.AzureDevOps(&model.IntegrationConnection{
		Platform: types.PlatformAzureDevOps, OrganizationURL: srv.URL + "/acme", AccessToken: "pat",
	})
	gt.NoError(t, err).Required()
	gt.Bool(t, ado.TestConnection(ctx)).True()

	as, err := f.Asana(&model.IntegrationConnection{Platform: types.PlatformAsana, AccessToken: "tok", WorkspaceID: "1"})
	gt.NoError(t, err).Required()
	gt.Bool(t, as.TestConnection(ctx)).True()

	cf, err := f.Confluence(&model.IntegrationConnection{
		Platform: types.PlatformConfluence, SiteURL: srv.URL, AccountEmail: "bot@example.com", AccessToken: "tok",
	})
	gt.NoError(t, err).Required()
	gt.Bool(t, cf.TestConnection(ctx)).True()

	gt.Value(t, uas).Equal([]string{"tributary-test", "tributary-test", "tributary-test"})
}

func TestClients_ConfigErrors(t *testing.T) {
	f := platform.New()

	_, err := f.AzureDevOps(&model.IntegrationConnection{Platform: types.PlatformAzureDevOps, AccessToken: "pat"})
	gt.Bool(t, errors.Is(err, azuredevops.ErrInvalidConfig)).True()

	_, err = f.Asana(&model.IntegrationConnection{Platform: types.PlatformAsana})
	gt.Bool(t, errors.Is(err, asana.ErrInvalidConfig)).True()

	_, err = f.Confluence(&model.IntegrationConnection{Platform: types.PlatformConfluence, SiteURL: "https://acme.atlassian.net", AccessToken: "t"})
	gt.Bool(t, errors.Is(err, confluence.ErrInvalidConfig)).True()

	_, err = f.Asana(&model.IntegrationConnection{Platform: types.PlatformConfluence, AccessToken: "t"})
	gt.Bool(t, errors.Is(err, platform.ErrPlatformMismatch)).True()
}
