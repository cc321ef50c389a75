package provision

import (
	"context"
	"fmt"

	"github.com/ospreyops/tenantd/pkg/keycloak"
)

// KeycloakProvisioner creates one realm and one confidential client per
// tenant. It implements IdentityRealmProvisioner.
type KeycloakProvisioner struct {
	client *keycloak.Client
}

func NewKeycloakProvisioner(client *keycloak.Client) *KeycloakProvisioner {
	return &KeycloakProvisioner{client: client}
}

func (k *KeycloakProvisioner) Provision(ctx context.Context, tenantSlug string) (*IdentityRealm, error) {
	realm := "tenant-" + tenantSlug

	if err := k.client.CreateRealm(ctx, realm); err != nil {
		return nil, err
	}

	rc, err := k.client.CreateClient(ctx, realm, tenantSlug+"-app")
	if err != nil {
		return nil, fmt.Errorf("realm %s created but client registration failed: %w", realm, err)
	}

	return &IdentityRealm{
		Realm:        rc.Realm,
		ClientID:     rc.ClientID,
		ClientSecret: rc.ClientSecret,
	}, nil
}
