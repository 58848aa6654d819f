package catalog

type seedPermission struct {
	resource    ResourceType
	action      PermissionType
	description string
}

// defaultPermissions is the baseline catalog for the counselling process.
var defaultPermissions = []seedPermission{
	{ResourceUser, PermRead, "Read user data"},
	{ResourceUser, PermWrite, "Create/update user data"},
	{ResourceUser, PermDelete, "Delete user data"},
	{ResourceUser, PermAdmin, "Full user administration"},

	{ResourceCollege, PermRead, "Read college data"},
	{ResourceCollege, PermWrite, "Create/update college data"},
	{ResourceCollege, PermApprove, "Approve college data"},
	{ResourceCollege, PermVerify, "Verify college data"},
	{ResourceCollege, PermAdmin, "Full college administration"},

	{ResourceStudent, PermRead, "Read student data"},
	{ResourceStudent, PermWrite, "Create/update student data"},
	{ResourceStudent, PermVerify, "Verify student data"},
	{ResourceStudent, PermAdmin, "Full student administration"},

	{ResourceStage, PermRead, "Read stage data"},
	{ResourceStage, PermWrite, "Create/update stages"},
	{ResourceStage, PermAdmin, "Full stage administration"},

	{ResourceSystem, PermRead, "Read system data"},
	{ResourceSystem, PermAdmin, "Full system administration"},
}
