package rxgrid

import "context"

// Override substitutes a provider's builder inside one container without
// touching the handle itself. Overrides are container-scoped and applied at
// creation time; other containers resolve the original builder.
type Override struct {
	key string
	reg *registration

	family   string
	famBuild func(arg any) func(context.Context, *Ref) (any, error)
}

// WithOverrides installs overrides on a container at creation time.
func WithOverrides(overrides ...Override) ContainerOption {
	return func(c *Container) {
		for _, ov := range overrides {
			if ov.family != "" {
				c.famOverrides[ov.family] = ov.famBuild
				continue
			}
			c.overrides[ov.key] = ov.reg
		}
	}
}

// OverrideBuilder replaces a provider's builder with a synchronous
// substitute. Overriding an async or stream provider this way makes its
// instances settle synchronously; the substitute returns the full
// AsyncValue.
func OverrideBuilder[T any](p *Provider[T], build BuildFunc[T]) Override {
	clone := *p.reg
	clone.kind = kindSync
	clone.buildSync = eraseBuild(build)
	clone.buildAsync = nil
	clone.runStream = nil
	return Override{key: p.reg.id.String(), reg: &clone}
}

// OverrideValue pins a provider to a constant value.
func OverrideValue[T any](p *Provider[T], v T) Override {
	return OverrideBuilder(p, func(ctx context.Context, r *Ref) (T, error) {
		return v, nil
	})
}

// OverrideAsyncValue pins an async provider to an immediately Ready value.
func OverrideAsyncValue[T any](p *AsyncProvider[T], v T) Override {
	return OverrideValue(p.Provider, AsyncValue[T]{State: AsyncReady, Value: v, HasValue: true})
}

// OverrideFamily substitutes the builder of every instance of a family,
// keyed by the family's name. The substitute runs synchronously with the
// instance's argument.
func OverrideFamily[A, T any](f *Family[A, T], build FamilyBuildFunc[A, T]) Override {
	return familyOverride(f.name, build)
}

// OverrideAsyncFamily substitutes the builder of every instance of an async
// family. The substitute runs synchronously and its result surfaces as an
// immediately Ready AsyncValue.
func OverrideAsyncFamily[A, T any](f *AsyncFamily[A, T], build FamilyBuildFunc[A, T]) Override {
	return familyOverride(f.name, build)
}

func familyOverride[A, T any](name string, build FamilyBuildFunc[A, T]) Override {
	return Override{
		family: name,
		famBuild: func(arg any) func(context.Context, *Ref) (any, error) {
			return func(ctx context.Context, r *Ref) (any, error) {
				v, err := build(ctx, r, arg.(A))
				if err != nil {
					return nil, err
				}
				return v, nil
			}
		},
	}
}
