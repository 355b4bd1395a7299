// Package msk resolves the streaming cluster's connection details: SCRAM
// credentials from AWS Secrets Manager and bootstrap brokers from the MSK
// cluster ARN.
package msk

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kafka"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// ConnectionInfo carries everything needed to dial the cluster.
type ConnectionInfo struct {
	Username string
	Password string
	Brokers  []string
}

type secretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type clusterAPI interface {
	GetBootstrapBrokers(ctx context.Context, params *kafka.GetBootstrapBrokersInput, optFns ...func(*kafka.Options)) (*kafka.GetBootstrapBrokersOutput, error)
}

type Resolver struct {
	secrets secretsAPI
	cluster clusterAPI
}

// NewResolver loads the default AWS configuration for the region and builds
// the service clients.
func NewResolver(ctx context.Context, region string) (*Resolver, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &Resolver{
		secrets: secretsmanager.NewFromConfig(cfg),
		cluster: kafka.NewFromConfig(cfg),
	}, nil
}

// newResolverWithClients is the test seam.
func newResolverWithClients(secrets secretsAPI, cluster clusterAPI) *Resolver {
	return &Resolver{secrets: secrets, cluster: cluster}
}

type scramSecret struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Lookup fetches the SCRAM credential named by secretName and the public
// SASL/SCRAM bootstrap brokers of the cluster.
func (r *Resolver) Lookup(ctx context.Context, clusterARN, secretName string) (ConnectionInfo, error) {
	secretOut, err := r.secrets.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &secretName,
	})
	if err != nil {
		return ConnectionInfo{}, fmt.Errorf("get secret %q: %w", secretName, err)
	}
	if secretOut.SecretString == nil {
		return ConnectionInfo{}, fmt.Errorf("secret %q has no string payload", secretName)
	}

	var creds scramSecret
	if err := json.Unmarshal([]byte(*secretOut.SecretString), &creds); err != nil {
		return ConnectionInfo{}, fmt.Errorf("decode secret %q: %w", secretName, err)
	}
	if creds.Username == "" || creds.Password == "" {
		return ConnectionInfo{}, fmt.Errorf("secret %q missing username or password", secretName)
	}

	brokersOut, err := r.cluster.GetBootstrapBrokers(ctx, &kafka.GetBootstrapBrokersInput{
		ClusterArn: &clusterARN,
	})
	if err != nil {
		return ConnectionInfo{}, fmt.Errorf("get bootstrap brokers for %q: %w", clusterARN, err)
	}

	brokerString := ""
	if brokersOut.BootstrapBrokerStringPublicSaslScram != nil {
		brokerString = *brokersOut.BootstrapBrokerStringPublicSaslScram
	} else if brokersOut.BootstrapBrokerStringSaslScram != nil {
		brokerString = *brokersOut.BootstrapBrokerStringSaslScram
	}
	if brokerString == "" {
		return ConnectionInfo{}, fmt.Errorf("cluster %q exposes no SASL/SCRAM brokers", clusterARN)
	}

	return ConnectionInfo{
		Username: creds.Username,
		Password: creds.Password,
		Brokers:  strings.Split(brokerString, ","),
	}, nil
}
