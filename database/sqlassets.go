package sqlassets

import _ "embed"

//go:embed schema/platform/users.sql
var UsersSQL string

//go:embed schema/platform/workspaces.sql
var WorkspacesSQL string

//go:embed schema/platform/dashboards.sql
var DashboardsSQL string
