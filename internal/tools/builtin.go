// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"hamcp/internal/fileops"
	"hamcp/internal/hacli"
	"hamcp/internal/supervisor"

	apperrors "hamcp/internal/errors"
)

func (r *Registry) registerBuiltins(deps Deps) {
	r.registerFileTools(deps.Files)
	r.registerCLITool(deps.CLI)
	if deps.Supervisor != nil {
		r.registerSupervisorTools(deps.Supervisor)
	}
}

func schema(required []string, props map[string]interface{}) map[string]interface{} {
	s := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func prop(typ, desc string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": desc}
}

func marshalResult(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeInternalIO, "failed to encode result", err)
	}
	return string(data), nil
}

func (r *Registry) registerFileTools(files *fileops.Handler) {
	r.register(&ToolDefinition{
		NameValue:        "list_directory",
		DescriptionValue: "List the contents of a directory within the allowed paths",
		ParametersValue: schema([]string{"path"}, map[string]interface{}{
			"path": prop("string", "Directory to list"),
		}),
		ValidateFunc: ChainValidation(RequireStringArg("path")),
		ExecuteFunc: func(ctx context.Context, args map[string]interface{}) (string, error) {
			entries, err := files.List(ctx, stringArg(args, "path", ""))
			if err != nil {
				return "", err
			}
			return marshalResult(map[string]interface{}{
				"path":    stringArg(args, "path", ""),
				"entries": entries,
				"count":   len(entries),
			})
		},
	})

	r.register(&ToolDefinition{
		NameValue:        "read_file",
		DescriptionValue: "Read a text file within the allowed paths, optionally a byte range",
		ParametersValue: schema([]string{"path"}, map[string]interface{}{
			"path":   prop("string", "File to read"),
			"offset": prop("integer", "Byte offset to start from"),
			"length": prop("integer", "Maximum number of bytes to return"),
		}),
		ValidateFunc: ChainValidation(RequireStringArg("path")),
		ExecuteFunc: func(ctx context.Context, args map[string]interface{}) (string, error) {
			var opts *fileops.ReadOptions
			offset := intArg(args, "offset", -1)
			length := intArg(args, "length", -1)
			if offset >= 0 || length >= 0 {
				opts = &fileops.ReadOptions{}
				if offset > 0 {
					opts.Offset = offset
				}
				if length > 0 {
					opts.Length = length
				}
			}
			return files.Read(ctx, stringArg(args, "path", ""), opts)
		},
	})

	r.register(&ToolDefinition{
		NameValue:        "write_file",
		DescriptionValue: "Write content to a file within the allowed paths",
		ParametersValue: schema([]string{"path", "content"}, map[string]interface{}{
			"path":    prop("string", "File to write"),
			"content": prop("string", "Content to store"),
		}),
		ValidateFunc: ChainValidation(RequireStringArg("path"), func(args map[string]interface{}) error {
			if _, ok := args["content"].(string); !ok {
				return errInvalidArguments("argument content must be a string")
			}
			return nil
		}),
		ExecuteFunc: func(ctx context.Context, args map[string]interface{}) (string, error) {
			path := stringArg(args, "path", "")
			content := stringArg(args, "content", "")
			if err := files.Write(ctx, path, content); err != nil {
				return "", err
			}
			return fmt.Sprintf("wrote %d bytes", len(content)), nil
		},
	})

	r.register(&ToolDefinition{
		NameValue:        "create_directory",
		DescriptionValue: "Create a new directory within the allowed paths",
		ParametersValue: schema([]string{"path"}, map[string]interface{}{
			"path": prop("string", "Directory to create"),
		}),
		ValidateFunc: ChainValidation(RequireStringArg("path")),
		ExecuteFunc: func(ctx context.Context, args map[string]interface{}) (string, error) {
			if err := files.CreateDir(ctx, stringArg(args, "path", "")); err != nil {
				return "", err
			}
			return "directory created", nil
		},
	})

	r.register(&ToolDefinition{
		NameValue:        "delete_path",
		DescriptionValue: "Delete a file or directory within the allowed paths",
		ParametersValue: schema([]string{"path"}, map[string]interface{}{
			"path":      prop("string", "File or directory to delete"),
			"recursive": prop("boolean", "Delete non-empty directories"),
		}),
		ValidateFunc: ChainValidation(RequireStringArg("path")),
		ExecuteFunc: func(ctx context.Context, args map[string]interface{}) (string, error) {
			if err := files.Delete(ctx, stringArg(args, "path", ""), boolArg(args, "recursive")); err != nil {
				return "", err
			}
			return "deleted", nil
		},
	})

	r.register(&ToolDefinition{
		NameValue:        "search_files",
		DescriptionValue: "Search file contents beneath a directory for a literal pattern",
		ParametersValue: schema([]string{"path", "pattern"}, map[string]interface{}{
			"path":    prop("string", "Directory to search under"),
			"pattern": prop("string", "Case-insensitive text to find"),
		}),
		ValidateFunc: ChainValidation(RequireStringArg("path"), RequireStringArg("pattern")),
		ExecuteFunc: func(ctx context.Context, args map[string]interface{}) (string, error) {
			results, err := files.Search(ctx, stringArg(args, "path", ""), stringArg(args, "pattern", ""))
			if err != nil {
				return "", err
			}
			return marshalResult(map[string]interface{}{
				"pattern": stringArg(args, "pattern", ""),
				"results": results,
				"count":   len(results),
			})
		},
	})
}

func (r *Registry) registerCLITool(cli *hacli.Service) {
	r.register(&ToolDefinition{
		NameValue:        "execute_ha_cli",
		DescriptionValue: "Run an allowed 'ha' CLI command and return its output",
		ParametersValue: schema([]string{"command"}, map[string]interface{}{
			"command": prop("string", "Full ha command line, e.g. 'ha core info'"),
		}),
		ValidateFunc: ChainValidation(RequireStringArg("command")),
		ExecuteFunc: func(ctx context.Context, args map[string]interface{}) (string, error) {
			result, err := cli.Execute(ctx, stringArg(args, "command", ""))
			if err != nil {
				return "", err
			}
			result.Stdout = r.filter.sanitize(result.Stdout)
			result.Stderr = r.filter.sanitize(result.Stderr)
			return marshalResult(result)
		},
	})
}

func (r *Registry) registerSupervisorTools(client *supervisor.Client) {
	r.register(&ToolDefinition{
		NameValue:        "list_addons",
		DescriptionValue: "List installed Home Assistant add-ons",
		ParametersValue:  schema(nil, map[string]interface{}{}),
		ExecuteFunc: func(ctx context.Context, args map[string]interface{}) (string, error) {
			addons, err := client.ListAddons(ctx)
			if err != nil {
				return "", err
			}
			return marshalResult(map[string]interface{}{"addons": addons, "count": len(addons)})
		},
	})

	r.register(&ToolDefinition{
		NameValue:        "get_addon_logs",
		DescriptionValue: "Fetch the log tail of one add-on by slug",
		ParametersValue: schema([]string{"slug"}, map[string]interface{}{
			"slug": prop("string", "Add-on slug, e.g. core_matter_server"),
		}),
		ValidateFunc: ChainValidation(RequireStringArg("slug")),
		ExecuteFunc: func(ctx context.Context, args map[string]interface{}) (string, error) {
			logs, err := client.AddonLogs(ctx, stringArg(args, "slug", ""))
			if err != nil {
				return "", err
			}
			return r.filter.sanitize(logs), nil
		},
	})

	r.register(&ToolDefinition{
		NameValue:        "get_logs",
		DescriptionValue: "Fetch logs for the supervisor, core or host",
		ParametersValue: schema([]string{"source"}, map[string]interface{}{
			"source": prop("string", "One of: supervisor, core, host"),
		}),
		ValidateFunc: ChainValidation(RequireStringArg("source")),
		ExecuteFunc: func(ctx context.Context, args map[string]interface{}) (string, error) {
			logs, err := client.Logs(ctx, stringArg(args, "source", ""))
			if err != nil {
				return "", err
			}
			return r.filter.sanitize(logs), nil
		},
	})

	r.register(&ToolDefinition{
		NameValue:        "get_entities",
		DescriptionValue: "List Home Assistant entity states",
		ParametersValue:  schema(nil, map[string]interface{}{}),
		ExecuteFunc: func(ctx context.Context, args map[string]interface{}) (string, error) {
			entities, err := client.States(ctx)
			if err != nil {
				return "", err
			}
			return marshalResult(map[string]interface{}{"entities": entities, "count": len(entities)})
		},
	})

	r.register(&ToolDefinition{
		NameValue:        "get_services",
		DescriptionValue: "List the Home Assistant service registry",
		ParametersValue:  schema(nil, map[string]interface{}{}),
		ExecuteFunc: func(ctx context.Context, args map[string]interface{}) (string, error) {
			services, err := client.Services(ctx)
			if err != nil {
				return "", err
			}
			return string(services), nil
		},
	})

	r.register(&ToolDefinition{
		NameValue:        "get_ha_config",
		DescriptionValue: "Fetch the Home Assistant core configuration",
		ParametersValue:  schema(nil, map[string]interface{}{}),
		ExecuteFunc: func(ctx context.Context, args map[string]interface{}) (string, error) {
			cfg, err := client.CoreConfig(ctx)
			if err != nil {
				return "", err
			}
			return marshalResult(cfg)
		},
	})
}
