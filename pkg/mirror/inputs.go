package mirror

import (
	"fmt"
	"io"

	"github.com/platinummonkey/rpmmirror/pkg/metadata"
)

// InputsFromRepomd assembles sync inputs from a parsed repomd index. open is
// called with each entry's location href and returns the raw (compressed)
// byte stream. Entry checksums from the index are attached so streams are
// verified during parsing.
func InputsFromRepomd(md *metadata.Repomd, open func(href string) (io.Reader, error)) (Inputs, error) {
	var inputs Inputs

	bind := func(name string, dst **metadata.Source) error {
		entry, ok := md.Get(name)
		if !ok {
			return nil
		}
		r, err := open(entry.Href)
		if err != nil {
			return fmt.Errorf("failed to open %s metadata at %s: %w", name, entry.Href, err)
		}
		src := metadata.SourceForEntry(entry, r)
		*dst = &src
		return nil
	}

	for _, b := range []struct {
		name string
		dst  **metadata.Source
	}{
		{metadata.FilePrimary, &inputs.Primary},
		{metadata.FileFilelists, &inputs.Filelists},
		{metadata.FileOther, &inputs.Other},
		{metadata.FileGroup, &inputs.Comps},
		{metadata.FileUpdateinfo, &inputs.Updateinfo},
		{metadata.FileModules, &inputs.Modules},
	} {
		if err := bind(b.name, b.dst); err != nil {
			return Inputs{}, err
		}
	}
	return inputs, nil
}
