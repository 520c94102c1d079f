package cmd

import (
	"card-reconciliation-service/internal/normalizer"
	"card-reconciliation-service/pkg/errors"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func (a *app) newSchemasCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schemas [channel...]",
		Short: "Print the channel schemas in effect",
		Long: `Schemas prints the column layout of every known channel as YAML: the
built-in KCB, EQUITY and ASPIRE schemas with any schemas from the config
file applied. The output can be pasted under 'schemas' in a config file as
the starting point for a new channel.`,
		RunE: a.runSchemas,
	}
}

func (a *app) runSchemas(cmd *cobra.Command, args []string) error {
	registry, err := a.config.Registry()
	if err != nil {
		return err
	}

	channels := args
	if len(channels) == 0 {
		channels = registry.Channels()
	}

	doc := struct {
		Schemas []*normalizer.ChannelSchema `yaml:"schemas"`
	}{}
	for _, ch := range channels {
		s, err := registry.Lookup(ch)
		if err != nil {
			return err
		}
		doc.Schemas = append(doc.Schemas, s)
	}

	enc := yaml.NewEncoder(a.stdout)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, errors.CodeProcessingError, "failed to encode schemas")
	}
	return enc.Close()
}
